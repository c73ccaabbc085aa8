package cmd

import (
	"bytes"
	"errors"
	"testing"

	usbserial "github.com/allbin/go-usbserial"
)

func TestParseSignalState(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
		wantErr  bool
	}{
		{"high", true, false},
		{"ON", true, false},
		{"1", true, false},
		{"low", false, false},
		{"off", false, false},
		{"false", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		got, err := parseSignalState(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("Expected %v for %q, got %v", tt.expected, tt.input, got)
		}
	}
}

func TestParseFlowControl(t *testing.T) {
	tests := []struct {
		input    string
		expected usbserial.FlowControl
	}{
		{"", usbserial.FlowControlNone},
		{"none", usbserial.FlowControlNone},
		{"RTSCTS", usbserial.FlowControlRTSCTS},
		{"dsr/dtr", usbserial.FlowControlDSRDTR},
		{"xonxoff", usbserial.FlowControlXonXoff},
	}
	for _, tt := range tests {
		got, err := parseFlowControl(tt.input)
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("Expected %v for %q, got %v", tt.expected, tt.input, got)
		}
	}

	if _, err := parseFlowControl("cts"); !errors.Is(err, usbserial.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}

func TestParseSignalMask(t *testing.T) {
	mask, err := parseSignalMask(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mask != signalCTS|signalDSR|signalRI|signalDCD {
		t.Errorf("Expected all signals, got %b", mask)
	}

	mask, err = parseSignalMask([]string{"cts", " DCD"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mask != signalCTS|signalDCD {
		t.Errorf("Expected cts|dcd, got %b", mask)
	}

	if _, err := parseSignalMask([]string{"rts"}); err == nil {
		t.Error("Expected error for output line rts")
	}
}

func TestDiffSignals(t *testing.T) {
	a := usbserial.ModemSignals{CTS: true, RTS: true}
	b := usbserial.ModemSignals{CTS: false, DSR: true, RTS: false}

	if got := diffSignals(a, a); got != 0 {
		t.Errorf("Expected no change, got %b", got)
	}
	// RTS is an output and never reported
	if got := diffSignals(a, b); got != signalCTS|signalDSR {
		t.Errorf("Expected cts|dsr, got %b", got)
	}
}

func TestParseHexString(t *testing.T) {
	tests := []struct {
		input    string
		expected []byte
		wantErr  bool
	}{
		{"48656c6c6f", []byte("Hello"), false},
		{"48 65 6C", []byte("HeL"), false},
		{"0x01 0x02\t0xff", []byte{0x01, 0x02, 0xff}, false},
		{"123", nil, true},
		{"zz", nil, true},
	}

	for _, tt := range tests {
		got, err := parseHexString(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.input, err)
			continue
		}
		if !bytes.Equal(got, tt.expected) {
			t.Errorf("Expected % X for %q, got % X", tt.expected, tt.input, got)
		}
	}
}

func TestUnescapeLineEnding(t *testing.T) {
	if got := unescapeLineEnding(`\r\n`); got != "\r\n" {
		t.Errorf("Expected CRLF, got %q", got)
	}
	if got := unescapeLineEnding(";"); got != ";" {
		t.Errorf("Expected ;, got %q", got)
	}
}

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"1002", 1002, false},
		{"3005/1", 3005, false},
		{"bus", 0, true},
		{"0", 0, true},
		{"/0", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDeviceID(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("Expected %d for %q, got %d", tt.expected, tt.input, got)
		}
	}
}

func TestFilterPorts(t *testing.T) {
	ports := []usbserial.PortInfo{
		{Name: "1002/0", Driver: "FTDI"},
		{Name: "1002/1", Driver: "FTDI"},
		{Name: "3005/0", Driver: "CDC-ACM"},
	}

	if got := filterPorts(ports, ""); len(got) != 3 {
		t.Errorf("Expected 3 ports, got %d", len(got))
	}
	if got := filterPorts(ports, "all"); len(got) != 3 {
		t.Errorf("Expected 3 ports, got %d", len(got))
	}
	got := filterPorts(ports, "ftdi")
	if len(got) != 2 || got[0].Name != "1002/0" || got[1].Name != "1002/1" {
		t.Errorf("Expected the FTDI ports, got %v", got)
	}
	if got := filterPorts(ports, "ch34x"); len(got) != 0 {
		t.Errorf("Expected no ports, got %v", got)
	}
}
