package usbserial

import (
	"encoding/hex"
	"fmt"
)

const hexDumpLimit = 64

// HexDump formats data as space separated hex bytes for log output.
// Long buffers are truncated.
func HexDump(data []byte) string {
	if len(data) > hexDumpLimit {
		return fmt.Sprintf("% X ... (%d bytes)", data[:hexDumpLimit], len(data))
	}
	return fmt.Sprintf("% X", data)
}

// HexDumpLines formats data as offset, hex and ASCII columns, 16 bytes
// per line.
func HexDumpLines(data []byte) string {
	return hex.Dump(data)
}
