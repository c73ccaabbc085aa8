package usbserial

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// TextPort reads and writes strings on a SerialPort in a text encoding.
type TextPort struct {
	port    *SerialPort
	enc     encoding.Encoding
	newLine string
}

// NewTextPort wraps port. A nil encoding means UTF-8 and an empty
// newLine means "\n".
func NewTextPort(port *SerialPort, enc encoding.Encoding, newLine string) *TextPort {
	if enc == nil {
		enc = unicode.UTF8
	}
	if newLine == "" {
		newLine = "\n"
	}
	return &TextPort{port: port, enc: enc, newLine: newLine}
}

// LookupEncoding resolves a WHATWG encoding label such as "utf-8",
// "iso-8859-1" or "windows-1252".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %q", ErrInvalidParameter, name)
	}
	return enc, nil
}

// Port returns the wrapped port.
func (t *TextPort) Port() *SerialPort {
	return t.port
}

// ReadString reads up to n bytes and decodes them.
func (t *TextPort) ReadString(n int) (string, error) {
	buf := make([]byte, n)
	read, err := t.port.Read(buf)
	if err != nil {
		return "", err
	}
	if read <= 0 {
		return "", nil
	}
	decoded, err := t.enc.NewDecoder().Bytes(buf[:read])
	if err != nil {
		return "", fmt.Errorf("failed to decode input: %w", err)
	}
	return string(decoded), nil
}

// WriteString encodes s and writes it.
func (t *TextPort) WriteString(s string) (int, error) {
	data, err := t.Encode(s)
	if err != nil {
		return 0, err
	}
	return t.port.Write(data)
}

// WriteLine writes s followed by the newline sequence.
func (t *TextPort) WriteLine(s string) (int, error) {
	return t.WriteString(s + t.newLine)
}

// Encode converts s into the port encoding.
func (t *TextPort) Encode(s string) ([]byte, error) {
	data, err := t.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q: %w", s, err)
	}
	return data, nil
}
