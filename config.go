package usbserial

import (
	"fmt"
	"time"
)

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlRTSCTS
	FlowControlDSRDTR
	FlowControlXonXoff
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlRTSCTS:
		return "rts/cts"
	case FlowControlDSRDTR:
		return "dsr/dtr"
	case FlowControlXonXoff:
		return "xon/xoff"
	}
	return fmt.Sprintf("FlowControl(%d)", int(f))
}

// Parity represents the parity mode. The values match the CDC line
// coding parity codes.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	}
	return fmt.Sprintf("Parity(%d)", int(p))
}

// ParseParity accepts the names produced by Parity.String and their
// single letter forms (N, O, E, M, S).
func ParseParity(s string) (Parity, error) {
	switch s {
	case "none", "n", "N":
		return ParityNone, nil
	case "odd", "o", "O":
		return ParityOdd, nil
	case "even", "e", "E":
		return ParityEven, nil
	case "mark", "m", "M":
		return ParityMark, nil
	case "space", "s", "S":
		return ParitySpace, nil
	}
	return ParityNone, fmt.Errorf("%w: parity %q", ErrInvalidParameter, s)
}

// StopBits represents the number of stop bits
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	}
	return fmt.Sprintf("StopBits(%d)", int(s))
}

// ParseStopBits accepts "1", "1.5" and "2".
func ParseStopBits(s string) (StopBits, error) {
	switch s {
	case "1":
		return StopBitsOne, nil
	case "1.5":
		return StopBitsOnePointFive, nil
	case "2":
		return StopBitsTwo, nil
	}
	return StopBitsOne, fmt.Errorf("%w: stop bits %q", ErrInvalidParameter, s)
}

const (
	DefaultBaudRate   = 115200
	DefaultDataBits   = 8
	DefaultTimeout    = 1000 * time.Millisecond
	DefaultBufferSize = 16 * 1024
)

// InfiniteTimeout asks a transfer to wait without limit. A read that
// still times out with this value fails with ErrHardTimeout.
const InfiniteTimeout time.Duration = 1<<63 - 1

// Config holds the configuration for a serial port
type Config struct {
	BaudRate        int
	DataBits        int
	StopBits        StopBits
	Parity          Parity
	FlowControl     FlowControl
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns 115200-8-N-1 with one second timeouts and
// 16 KiB buffers.
func DefaultConfig() Config {
	return Config{
		BaudRate:        DefaultBaudRate,
		DataBits:        DefaultDataBits,
		StopBits:        StopBitsOne,
		Parity:          ParityNone,
		FlowControl:     FlowControlNone,
		ReadTimeout:     DefaultTimeout,
		WriteTimeout:    DefaultTimeout,
		ReadBufferSize:  DefaultBufferSize,
		WriteBufferSize: DefaultBufferSize,
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// Validate checks ranges that do not depend on the chip.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, c.DataBits)
	}
	if c.StopBits < StopBitsOne || c.StopBits > StopBitsTwo {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}
	if c.Parity < ParityNone || c.Parity > ParitySpace {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidConfig
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits
func WithStopBits(bits StopBits) Option {
	return func(c *Config) error {
		if bits < StopBitsOne || bits > StopBitsTwo {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *Config) error {
		c.FlowControl = fc
		return nil
	}
}

// WithReadTimeout sets the timeout used by SerialPort.Read
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the timeout used by SerialPort.Write
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.WriteTimeout = timeout
		return nil
	}
}

// WithReadBufferSize sets the size of the internal read buffer
func WithReadBufferSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.ReadBufferSize = size
		return nil
	}
}

// WithWriteBufferSize sets the maximum chunk size of a bulk write
func WithWriteBufferSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.WriteBufferSize = size
		return nil
	}
}
