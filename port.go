package usbserial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Port is one serial channel of a USB serial device.
type Port interface {
	Driver() Driver
	PortNumber() int
	IsOpen() bool

	Open(cfg Config) error
	Close() error
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(buf []byte, timeout time.Duration) (int, error)
	SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error
	Purge(rx, tx bool) error

	// Modem signal control and monitoring
	GetCD() (bool, error)
	GetCTS() (bool, error)
	GetDSR() (bool, error)
	GetDTR() (bool, error)
	SetDTR(state bool) error
	GetRI() (bool, error)
	GetRTS() (bool, error)
	SetRTS(state bool) error
}

// BreakSetter is implemented by ports that can hold the line in a break
// condition.
type BreakSetter interface {
	SetBreak(on bool) error
}

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// GetModemSignals reads every line of p.
func GetModemSignals(p Port) (ModemSignals, error) {
	var (
		s   ModemSignals
		err error
	)
	read := func(get func() (bool, error), dst *bool) {
		if err != nil {
			return
		}
		*dst, err = get()
	}
	read(p.GetCTS, &s.CTS)
	read(p.GetDSR, &s.DSR)
	read(p.GetRI, &s.RI)
	read(p.GetCD, &s.DCD)
	read(p.GetRTS, &s.RTS)
	read(p.GetDTR, &s.DTR)
	if err != nil {
		return ModemSignals{}, fmt.Errorf("failed to get modem signals: %w", err)
	}
	return s, nil
}

// portState holds what every chip port shares: lifecycle, claimed
// interfaces, data endpoints and the read/write buffers. mu guards the
// lifecycle and control transfers, readMu and writeMu guard the buffers.
type portState struct {
	mu      sync.Mutex
	driver  Driver
	handle  *deviceHandle
	number  int
	log     *zap.SugaredLogger
	open    bool
	conn    Connection
	claimed []*Interface
	readEp  *Endpoint
	writeEp *Endpoint
	readSz  int
	writeSz int

	readMu   sync.Mutex
	readBuf  []byte
	writeMu  sync.Mutex
	writeBuf []byte
}

func newPortState(d Driver, h *deviceHandle, number int) portState {
	return portState{
		driver: d,
		handle: h,
		number: number,
		log:    h.log.With("port", number),
	}
}

func (s *portState) Driver() Driver {
	return s.driver
}

func (s *portState) PortNumber() int {
	return s.number
}

func (s *portState) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// openWith acquires the device connection and runs init with mu held.
// Any failure releases what init claimed and leaves the port closed.
func (s *portState) openWith(cfg Config, init func(conn Connection) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}

	conn, err := s.handle.acquire()
	if err != nil {
		return err
	}
	s.conn = conn

	if err := init(conn); err != nil {
		if terr := s.teardown(); terr != nil {
			s.log.Warnw("cleanup after failed open", "error", terr)
		}
		return err
	}
	if s.readEp == nil || s.writeEp == nil {
		if terr := s.teardown(); terr != nil {
			s.log.Warnw("cleanup after failed open", "error", terr)
		}
		return fmt.Errorf("failed to open port %d: %w", s.number, ErrNoEndpoint)
	}

	s.readSz = cfg.ReadBufferSize
	s.writeSz = cfg.WriteBufferSize
	s.open = true
	s.log.Debugw("port opened", "read", s.readEp.Address, "write", s.writeEp.Address)
	return nil
}

// closeWith runs shutdown with mu held, then releases every claim.
func (s *portState) closeWith(shutdown func(conn Connection) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrAlreadyClosed
	}

	var err error
	if shutdown != nil {
		err = shutdown(s.conn)
	}
	err = multierr.Append(err, s.teardown())
	s.log.Debugw("port closed", "error", err)
	return err
}

// claim claims intf through the shared handle and records it so that
// teardown releases it.
func (s *portState) claim(intf *Interface) error {
	if err := s.handle.claim(intf); err != nil {
		return err
	}
	s.claimed = append(s.claimed, intf)
	return nil
}

func (s *portState) teardown() error {
	var err error
	for i := len(s.claimed) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.handle.unclaim(s.claimed[i]))
	}
	s.claimed = nil
	if s.conn != nil {
		err = multierr.Append(err, s.handle.release())
		s.conn = nil
	}
	s.readEp = nil
	s.writeEp = nil
	s.open = false
	return err
}

// control runs fn with mu held on an open port.
func (s *portState) control(fn func(conn Connection) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrPortClosed
	}
	return fn(s.conn)
}

func (s *portState) snapshot() (Connection, *Endpoint, *Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, nil, nil, ErrPortClosed
	}
	return s.conn, s.readEp, s.writeEp, nil
}

// payloadFunc copies the payload of n raw bytes into dst.
type payloadFunc func(dst, raw []byte, maxPacket int) (int, error)

func copyPayload(dst, raw []byte, _ int) (int, error) {
	return copy(dst, raw), nil
}

// Read performs one bulk transfer and copies the payload into buf.
func (s *portState) Read(buf []byte, timeout time.Duration) (int, error) {
	return s.readWith(buf, timeout, copyPayload)
}

func (s *portState) readWith(buf []byte, timeout time.Duration, payload payloadFunc) (int, error) {
	conn, ep, _, err := s.snapshot()
	if err != nil {
		return 0, err
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	if len(s.readBuf) != s.readSz {
		s.readBuf = make([]byte, s.readSz)
	}
	want := min(len(buf), len(s.readBuf))
	if want == 0 {
		return 0, nil
	}

	n, err := bulkRead(conn, ep, s.readBuf[:want], timeout)
	if err != nil || n <= 0 {
		return n, err
	}
	s.log.Debugw("read", "bytes", n, "data", HexDump(s.readBuf[:n]))
	return payload(buf, s.readBuf[:n], ep.MaxPacketSize)
}

// Write sends buf in chunks no larger than the write buffer.
func (s *portState) Write(buf []byte, timeout time.Duration) (int, error) {
	conn, _, ep, err := s.snapshot()
	if err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if len(s.writeBuf) != s.writeSz {
		s.writeBuf = make([]byte, s.writeSz)
	}
	n, err := bulkWrite(conn, ep, s.writeBuf, buf, timeout)
	s.log.Debugw("write", "bytes", n, "total", len(buf))
	return n, err
}

// bulkRead translates a timeout into a zero byte read, or into
// ErrHardTimeout when the caller asked to wait forever.
func bulkRead(conn Connection, ep *Endpoint, buf []byte, timeout time.Duration) (int, error) {
	n, err := conn.BulkTransfer(ep, buf, timeout)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, ErrTimeout) {
		if timeout == InfiniteTimeout {
			return -1, fmt.Errorf("bulk read on %s: %w", ep, ErrHardTimeout)
		}
		return 0, nil
	}
	return 0, &TransferError{Op: "bulk read", Result: n, Expected: len(buf), Err: err}
}

// bulkWrite copies data through chunk and sends it until everything is
// written. A transfer that moves no bytes ends the loop with a
// TransferError describing the failed chunk.
func bulkWrite(conn Connection, ep *Endpoint, chunk, data []byte, timeout time.Duration) (int, error) {
	offset := 0
	for offset < len(data) {
		length := copy(chunk, data[offset:])
		n, err := conn.BulkTransfer(ep, chunk[:length], timeout)
		if err != nil || n <= 0 {
			return offset, &TransferError{
				Op:       "bulk write",
				Result:   n,
				Expected: length,
				Offset:   offset,
				Total:    len(data),
				Err:      err,
			}
		}
		offset += min(n, length)
	}
	return offset, nil
}

// controlOut issues a control transfer that must move exactly len(data)
// bytes.
func controlOut(conn Connection, op string, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) error {
	n, err := conn.ControlTransfer(requestType, request, value, index, data, timeout)
	if err != nil || n != len(data) {
		return &TransferError{Op: op, Result: n, Expected: len(data), Err: err}
	}
	return nil
}

// controlIn reads exactly length bytes with a control transfer.
func controlIn(conn Connection, op string, requestType, request uint8, value, index uint16, length int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, length)
	n, err := conn.ControlTransfer(requestType, request, value, index, buf, timeout)
	if err != nil || n != length {
		return nil, &TransferError{Op: op, Result: n, Expected: length, Err: err}
	}
	return buf, nil
}
