package usbserial

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}

	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}

	if config.StopBits != StopBitsOne {
		t.Errorf("Expected StopBits 1, got %v", config.StopBits)
	}

	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}

	if config.FlowControl != FlowControlNone {
		t.Errorf("Expected FlowControl None, got %v", config.FlowControl)
	}

	if config.ReadBufferSize != 16*1024 || config.WriteBufferSize != 16*1024 {
		t.Errorf("Expected 16KiB buffers, got %d/%d", config.ReadBufferSize, config.WriteBufferSize)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate, got %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	config, err := NewConfig(
		WithBaudRate(9600),
		WithDataBits(7),
		WithStopBits(StopBitsTwo),
		WithParity(ParityEven),
		WithFlowControl(FlowControlRTSCTS),
		WithReadTimeout(200*time.Millisecond),
		WithWriteTimeout(3*time.Second),
		WithReadBufferSize(64),
		WithWriteBufferSize(32),
	)
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}
	if config.DataBits != 7 {
		t.Errorf("Expected DataBits 7, got %d", config.DataBits)
	}
	if config.StopBits != StopBitsTwo {
		t.Errorf("Expected StopBits 2, got %v", config.StopBits)
	}
	if config.Parity != ParityEven {
		t.Errorf("Expected Parity Even, got %v", config.Parity)
	}
	if config.FlowControl != FlowControlRTSCTS {
		t.Errorf("Expected FlowControl RTS/CTS, got %v", config.FlowControl)
	}
	if config.ReadTimeout != 200*time.Millisecond {
		t.Errorf("Expected ReadTimeout 200ms, got %v", config.ReadTimeout)
	}
	if config.WriteTimeout != 3*time.Second {
		t.Errorf("Expected WriteTimeout 3s, got %v", config.WriteTimeout)
	}
	if config.ReadBufferSize != 64 || config.WriteBufferSize != 32 {
		t.Errorf("Expected buffers 64/32, got %d/%d", config.ReadBufferSize, config.WriteBufferSize)
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero baud rate", WithBaudRate(0)},
		{"negative baud rate", WithBaudRate(-9600)},
		{"4 data bits", WithDataBits(4)},
		{"9 data bits", WithDataBits(9)},
		{"stop bits out of range", WithStopBits(StopBits(3))},
		{"parity out of range", WithParity(Parity(7))},
		{"negative read timeout", WithReadTimeout(-time.Millisecond)},
		{"negative write timeout", WithWriteTimeout(-time.Millisecond)},
		{"zero read buffer", WithReadBufferSize(0)},
		{"zero write buffer", WithWriteBufferSize(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	config := DefaultConfig()
	config.DataBits = 9
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for 9 data bits, got %v", err)
	}

	config = DefaultConfig()
	config.ReadBufferSize = 0
	if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for empty buffer, got %v", err)
	}

	config = DefaultConfig()
	config.ReadTimeout = InfiniteTimeout
	if err := config.Validate(); err != nil {
		t.Errorf("InfiniteTimeout should validate, got %v", err)
	}
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		input    string
		expected Parity
		hasError bool
	}{
		{"none", ParityNone, false},
		{"N", ParityNone, false},
		{"odd", ParityOdd, false},
		{"e", ParityEven, false},
		{"mark", ParityMark, false},
		{"S", ParitySpace, false},
		{"parity", ParityNone, true},
	}

	for _, test := range tests {
		result, err := ParseParity(test.input)
		if test.hasError {
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("Expected ErrInvalidParameter for %q, got %v", test.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("ParseParity(%q) = %v, expected %v", test.input, result, test.expected)
		}
		if back, _ := ParseParity(result.String()); back != result {
			t.Errorf("ParseParity(%q) does not round trip", result.String())
		}
	}
}

func TestParseStopBits(t *testing.T) {
	tests := []struct {
		input    string
		expected StopBits
		hasError bool
	}{
		{"1", StopBitsOne, false},
		{"1.5", StopBitsOnePointFive, false},
		{"2", StopBitsTwo, false},
		{"3", StopBitsOne, true},
	}

	for _, test := range tests {
		result, err := ParseStopBits(test.input)
		if (err != nil) != test.hasError {
			t.Errorf("ParseStopBits(%q) error = %v, wantErr %v", test.input, err, test.hasError)
		}
		if result != test.expected {
			t.Errorf("ParseStopBits(%q) = %v, expected %v", test.input, result, test.expected)
		}
	}
}
