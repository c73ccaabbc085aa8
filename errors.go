package usbserial

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrDriverNotFound = errors.New("no driver registered for device")
	ErrPortNotFound   = errors.New("serial port not found")
	ErrInstantiation  = errors.New("failed to instantiate driver")

	ErrAlreadyOpen   = errors.New("port already open")
	ErrAlreadyClosed = errors.New("port already closed")
	ErrPortClosed    = errors.New("serial port is closed")

	ErrTimeout     = errors.New("transfer timed out")
	ErrHardTimeout = errors.New("transfer timed out with infinite timeout")

	ErrUnsupportedParameter = errors.New("unsupported serial parameter")
	ErrInvalidParameter     = errors.New("invalid serial parameter")
	ErrInvalidConfig        = errors.New("invalid serial configuration")

	ErrClaimFailed   = errors.New("failed to claim interface")
	ErrTransfer      = errors.New("usb transfer failed")
	ErrVerification  = errors.New("device verification failed")
	ErrNoEndpoint    = errors.New("required endpoint not found")
	ErrNoInterface   = errors.New("required interface not found")
	ErrUnknownDevice = errors.New("unknown device type")
)

// TransferError describes a control or bulk transfer that returned an
// unexpected result.
type TransferError struct {
	Op       string
	Result   int
	Expected int
	Offset   int
	Total    int
	Err      error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%s: result %d", e.Op, e.Result)
	if e.Expected > 0 {
		msg += fmt.Sprintf(", expected %d", e.Expected)
	}
	if e.Total > 0 {
		msg += fmt.Sprintf(" (offset %d of %d)", e.Offset, e.Total)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransfer, e.Err}
	}
	return []error{ErrTransfer}
}

// VerificationError reports a handshake step whose response did not
// match. A negative expected value matches any byte.
type VerificationError struct {
	Step     string
	Expected []int
	Actual   []byte
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: expected %s, got % x", e.Step, formatExpected(e.Expected), e.Actual)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerification
}

func formatExpected(expected []int) string {
	s := ""
	for i, v := range expected {
		if i > 0 {
			s += " "
		}
		if v < 0 {
			s += "??"
		} else {
			s += fmt.Sprintf("%02x", v)
		}
	}
	return s
}
