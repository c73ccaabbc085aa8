package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-usbserial/internal/tui/styles"
)

// DataReceivedMsg carries one chunk of bytes read from or written to the port.
type DataReceivedMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
}

// DisplayMode selects the columns of a formatted line.
type DisplayMode struct {
	ShowHex        bool
	ShowASCII      bool
	ShowTimestamps bool
	ShowIndicators bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(mode DisplayMode) *DataFormatter {
	return &DataFormatter{mode: mode}
}

func (df *DataFormatter) SetDisplayMode(mode DisplayMode) {
	df.mode = mode
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	var prefix []string
	if df.mode.ShowTimestamps {
		prefix = append(prefix, styles.TimestampStyle.Render("["+msg.Timestamp.Format("15:04:05.000")+"]"))
	}
	if df.mode.ShowIndicators {
		if msg.IsTX {
			prefix = append(prefix, styles.TXStyle.Render("↗ TX"))
		} else {
			prefix = append(prefix, styles.RXStyle.Render("↙ RX"))
		}
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+printable(msg.Data))
	}
	// If both are disabled, show raw bytes count
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	body := strings.Join(parts, "  ")
	if len(prefix) == 0 {
		return body
	}
	return strings.Join(prefix, " ") + ": " + body
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func (df *DataFormatter) ToggleTimestamps() {
	df.mode.ShowTimestamps = !df.mode.ShowTimestamps
}

func (df *DataFormatter) ToggleIndicators() {
	df.mode.ShowIndicators = !df.mode.ShowIndicators
}

// printable replaces bytes outside printable ASCII with dots so that no
// terminal control sequence reaches the screen.
func printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}
