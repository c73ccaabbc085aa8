package usbserial

import (
	"errors"
	"fmt"
	"time"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	prolificReadTimeout  = 1000 * time.Millisecond
	prolificWriteTimeout = 5000 * time.Millisecond
	prolificStatusPoll   = 500 * time.Millisecond

	prolificVendorOut = 0x40
	prolificVendorIn  = 0xC0
	prolificCtrlOut   = 0x21

	prolificVendorRead     = 0x01
	prolificVendorWrite    = 0x01
	prolificVendorReadHXN  = 0x81
	prolificVendorWriteHXN = 0x80

	prolificWriteEndpoint     = 0x02
	prolificReadEndpoint      = 0x83
	prolificInterruptEndpoint = 0x81

	prolificResetHXN = 0x07
	prolificFlushRX  = 0x08
	prolificFlushTX  = 0x09

	prolificSetLine       = 0x20
	prolificSetControl    = 0x22
	prolificGetControlHXN = 0x80
	prolificGetControl    = 0x87

	prolificResetHXNRXPipe = 1
	prolificResetHXNTXPipe = 2

	prolificControlDTR = 0x01
	prolificControlRTS = 0x02

	prolificGetControlRI  = 0x01
	prolificGetControlCD  = 0x02
	prolificGetControlDSR = 0x04
	prolificGetControlCTS = 0x08

	prolificGetControlHXNCTS = 0x08
	prolificGetControlHXNDSR = 0x20
	prolificGetControlHXNCD  = 0x40
	prolificGetControlHXNRI  = 0x80

	prolificStatusCD  = 0x01
	prolificStatusDSR = 0x02
	prolificStatusRI  = 0x08
	prolificStatusCTS = 0x80

	prolificStatusBufferSize = 10
	prolificStatusByteIndex  = 8
)

// prolificType is the PL2303 revision. Request codes and status layouts
// differ between revisions.
type prolificType int

const (
	prolificType01 prolificType = iota
	prolificTypeT
	prolificTypeHX
	prolificTypeHXN
)

func (t prolificType) String() string {
	switch t {
	case prolificType01:
		return "01"
	case prolificTypeT:
		return "T"
	case prolificTypeHX:
		return "HX"
	case prolificTypeHXN:
		return "HXN"
	}
	return "unknown"
}

// ProlificDriver handles PL2303 adapters.
var ProlificDriver = &DriverType{
	Name:             "Prolific",
	SupportedDevices: prolificSupportedDevices,
	New:              newProlificDriver,
}

func prolificSupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorProlific: {
			usbid.ProlificPL2303,
			usbid.ProlificPL2303GC,
			usbid.ProlificPL2303GB,
			usbid.ProlificPL2303GT,
			usbid.ProlificPL2303GL,
			usbid.ProlificPL2303GE,
			usbid.ProlificPL2303GS,
		},
	}
}

type prolificDriver struct {
	driverBase
}

func newProlificDriver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("prolific: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &prolificDriver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		return []Port{&prolificPort{portState: newPortState(d, d.handle, 0)}}
	}
	return d, nil
}

type lineParams struct {
	baudRate int
	dataBits int
	stopBits StopBits
	parity   Parity
}

type prolificPort struct {
	portState
	deviceType   prolificType
	interruptEp  *Endpoint
	controlLines uint16
	params       *lineParams

	monitor *statusMonitor
	status  atomic.Uint32
	lastErr atomic.Error
}

var _ Port = (*prolificPort)(nil)

func (p *prolificPort) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		intf := p.handle.device.Interface(0)
		if intf == nil {
			return fmt.Errorf("prolific: %w: interface 0", ErrNoInterface)
		}
		if err := p.claim(intf); err != nil {
			return err
		}

		p.readEp = findEndpointByAddress(intf, prolificReadEndpoint)
		p.writeEp = findEndpointByAddress(intf, prolificWriteEndpoint)
		p.interruptEp = findEndpointByAddress(intf, prolificInterruptEndpoint)
		p.params = nil
		p.status.Store(0)
		p.lastErr.Store(nil)

		deviceType, err := p.detectType(conn)
		if err != nil {
			return err
		}
		p.deviceType = deviceType
		p.log.Debugw("detected device type", "type", deviceType)

		if err := p.setControlLines(conn, p.controlLines); err != nil {
			return err
		}
		if err := p.purge(conn, true, true); err != nil {
			return err
		}
		if err := p.blackMagic(conn); err != nil {
			return err
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

// detectType reads bcdUSB, bMaxPacketSize0 and bcdDevice from the raw
// device descriptor.
func (p *prolificPort) detectType(conn Connection) (prolificType, error) {
	raw, err := conn.RawDescriptors()
	if err != nil {
		return 0, fmt.Errorf("prolific: failed to get device descriptors: %w", err)
	}
	if len(raw) < 14 {
		return 0, fmt.Errorf("prolific: %w: descriptor length %d", ErrUnknownDevice, len(raw))
	}
	usbVersion := uint16(raw[3])<<8 | uint16(raw[2])
	deviceVersion := uint16(raw[13])<<8 | uint16(raw[12])
	maxPacketSize0 := raw[7]

	if p.handle.device.Class == ClassComm || maxPacketSize0 != 64 {
		return prolificType01, nil
	}
	switch {
	case deviceVersion == 0x300 && usbVersion == 0x200:
		return prolificTypeT, nil // TB
	case deviceVersion == 0x500:
		return prolificTypeT, nil // TA
	case usbVersion == 0x200 && !p.testHXStatus(conn):
		return prolificTypeHXN, nil
	}
	return prolificTypeHX, nil
}

func (p *prolificPort) testHXStatus(conn Connection) bool {
	_, err := controlIn(conn, "prolific test hx status", prolificVendorIn, prolificVendorRead, 0x8080, 0, 1, prolificReadTimeout)
	return err == nil
}

func (p *prolificPort) vendorIn(conn Connection, value, index uint16, length int) ([]byte, error) {
	request := uint8(prolificVendorRead)
	if p.deviceType == prolificTypeHXN {
		request = prolificVendorReadHXN
	}
	return controlIn(conn, fmt.Sprintf("prolific vendor in 0x%04x", value), prolificVendorIn, request, value, index, length, prolificReadTimeout)
}

func (p *prolificPort) vendorOut(conn Connection, value, index uint16) error {
	request := uint8(prolificVendorWrite)
	if p.deviceType == prolificTypeHXN {
		request = prolificVendorWriteHXN
	}
	return controlOut(conn, fmt.Sprintf("prolific vendor out 0x%04x", value), prolificVendorOut, request, value, index, nil, prolificWriteTimeout)
}

func (p *prolificPort) ctrlOut(conn Connection, request uint8, value, index uint16, data []byte) error {
	return controlOut(conn, fmt.Sprintf("prolific ctrl out 0x%02x", request), prolificCtrlOut, request, value, index, data, prolificWriteTimeout)
}

// blackMagic is the undocumented initialization sequence of the vendor
// driver. HXN chips do not need it.
func (p *prolificPort) blackMagic(conn Connection) error {
	if p.deviceType == prolificTypeHXN {
		return nil
	}

	last := uint16(0x24)
	if p.deviceType == prolificTypeHX {
		last = 0x44
	}
	steps := []struct {
		in           bool
		value, index uint16
	}{
		{true, 0x8484, 0},
		{false, 0x0404, 0},
		{true, 0x8484, 0},
		{true, 0x8383, 0},
		{true, 0x8484, 0},
		{false, 0x0404, 1},
		{true, 0x8484, 0},
		{true, 0x8383, 0},
		{false, 0, 1},
		{false, 1, 0},
		{false, 2, last},
	}
	for _, s := range steps {
		var err error
		if s.in {
			_, err = p.vendorIn(conn, s.value, s.index, 1)
		} else {
			err = p.vendorOut(conn, s.value, s.index)
		}
		if err != nil {
			return fmt.Errorf("prolific init sequence: %w", err)
		}
	}
	return nil
}

func (p *prolificPort) setControlLines(conn Connection, value uint16) error {
	if err := p.ctrlOut(conn, prolificSetControl, value, 0, nil); err != nil {
		return err
	}
	p.controlLines = value
	return nil
}

func (p *prolificPort) purge(conn Connection, rx, tx bool) error {
	if p.deviceType == prolificTypeHXN {
		var index uint16
		if tx {
			index |= prolificResetHXNRXPipe
		}
		if rx {
			index |= prolificResetHXNTXPipe
		}
		if index == 0 {
			return nil
		}
		return p.vendorOut(conn, prolificResetHXN, index)
	}
	if tx {
		if err := p.vendorOut(conn, prolificFlushRX, 0); err != nil {
			return err
		}
	}
	if rx {
		return p.vendorOut(conn, prolificFlushTX, 0)
	}
	return nil
}

func (p *prolificPort) Close() error {
	return p.closeWith(func(conn Connection) error {
		if p.monitor != nil {
			p.monitor.stop()
			p.monitor = nil
		}
		p.interruptEp = nil
		if err := p.purge(conn, true, true); err != nil {
			p.log.Warnw("purge on close failed", "error", err)
			return err
		}
		return nil
	})
}

func (p *prolificPort) Read(buf []byte, timeout time.Duration) (int, error) {
	return p.readWith(buf, timeout, copyPayload)
}

func (p *prolificPort) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *prolificPort) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	next := lineParams{baudRate, dataBits, stopBits, parity}
	if p.params != nil && *p.params == next {
		return nil
	}
	msg, err := lineCoding(baudRate, dataBits, stopBits, parity)
	if err != nil {
		return err
	}
	if err := p.ctrlOut(conn, prolificSetLine, 0, 0, msg); err != nil {
		return err
	}
	if err := p.purge(conn, true, true); err != nil {
		return err
	}
	p.params = &next
	return nil
}

// getStatus returns the status byte kept current by the monitor. The
// first call reads the control register and starts the monitor. An
// error recorded by the monitor is returned once, then cleared.
func (p *prolificPort) getStatus() (byte, error) {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if p.monitor == nil && p.lastErr.Load() == nil {
		if err := p.startMonitor(p.conn); err != nil {
			p.mu.Unlock()
			return 0, err
		}
	}
	p.mu.Unlock()

	if err := p.lastErr.Swap(nil); err != nil {
		return 0, fmt.Errorf("prolific status monitor: %w", err)
	}
	return byte(p.status.Load()), nil
}

func (p *prolificPort) startMonitor(conn Connection) error {
	if p.interruptEp == nil {
		return fmt.Errorf("prolific: %w: interrupt endpoint 0x%02x", ErrNoEndpoint, prolificInterruptEndpoint)
	}

	value, cts, dsr, cd, ri := uint16(prolificGetControl), byte(prolificGetControlCTS), byte(prolificGetControlDSR), byte(prolificGetControlCD), byte(prolificGetControlRI)
	if p.deviceType == prolificTypeHXN {
		value, cts, dsr, cd, ri = prolificGetControlHXN, prolificGetControlHXNCTS, prolificGetControlHXNDSR, prolificGetControlHXNCD, prolificGetControlHXNRI
	}
	data, err := p.vendorIn(conn, value, 0, 1)
	if err != nil {
		return err
	}

	// lines are active low in the control register
	var status uint32
	if data[0]&cts == 0 {
		status |= prolificStatusCTS
	}
	if data[0]&dsr == 0 {
		status |= prolificStatusDSR
	}
	if data[0]&cd == 0 {
		status |= prolificStatusCD
	}
	if data[0]&ri == 0 {
		status |= prolificStatusRI
	}
	p.status.Store(status)

	p.monitor = newStatusMonitor(conn, p.interruptEp, &p.status, &p.lastErr, p.log)
	p.monitor.start()
	return nil
}

func (p *prolificPort) statusFlag(flag byte) (bool, error) {
	status, err := p.getStatus()
	if err != nil {
		return false, err
	}
	return status&flag == flag, nil
}

func (p *prolificPort) GetCD() (bool, error)  { return p.statusFlag(prolificStatusCD) }
func (p *prolificPort) GetCTS() (bool, error) { return p.statusFlag(prolificStatusCTS) }
func (p *prolificPort) GetDSR() (bool, error) { return p.statusFlag(prolificStatusDSR) }
func (p *prolificPort) GetRI() (bool, error)  { return p.statusFlag(prolificStatusRI) }

func (p *prolificPort) GetDTR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controlLines&prolificControlDTR != 0, nil
}

func (p *prolificPort) GetRTS() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controlLines&prolificControlRTS != 0, nil
}

func (p *prolificPort) SetDTR(state bool) error {
	return p.control(func(conn Connection) error {
		return p.setControlLines(conn, setBit(p.controlLines, prolificControlDTR, state))
	})
}

func (p *prolificPort) SetRTS(state bool) error {
	return p.control(func(conn Connection) error {
		return p.setControlLines(conn, setBit(p.controlLines, prolificControlRTS, state))
	})
}

func (p *prolificPort) Purge(rx, tx bool) error {
	return p.control(func(conn Connection) error {
		return p.purge(conn, rx, tx)
	})
}

func setBit(v, bit uint16, on bool) uint16 {
	if on {
		return v | bit
	}
	return v &^ bit
}

// statusMonitor polls the interrupt endpoint in the background and
// stores the latest status byte.
type statusMonitor struct {
	conn     Connection
	ep       *Endpoint
	status   *atomic.Uint32
	lastErr  *atomic.Error
	log      *zap.SugaredLogger
	stopCh   chan struct{}
	activeCh chan struct{}
}

func newStatusMonitor(conn Connection, ep *Endpoint, status *atomic.Uint32, lastErr *atomic.Error, log *zap.SugaredLogger) *statusMonitor {
	return &statusMonitor{
		conn:     conn,
		ep:       ep,
		status:   status,
		lastErr:  lastErr,
		log:      log,
		stopCh:   make(chan struct{}),
		activeCh: make(chan struct{}),
	}
}

func (m *statusMonitor) start() {
	go m.run()
}

// stop signals the goroutine and waits for it to exit.
func (m *statusMonitor) stop() {
	close(m.stopCh)
	<-m.activeCh
}

func (m *statusMonitor) run() {
	defer close(m.activeCh)

	buf := make([]byte, prolificStatusBufferSize)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		n, err := m.conn.BulkTransfer(m.ep, buf, prolificStatusPoll)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			m.fail(&TransferError{Op: "prolific status read", Result: n, Expected: prolificStatusBufferSize, Err: err})
			return
		}
		switch n {
		case 0:
			continue
		case prolificStatusBufferSize:
			m.status.Store(uint32(buf[prolificStatusByteIndex]))
		default:
			m.fail(&TransferError{Op: "prolific status read", Result: n, Expected: prolificStatusBufferSize})
			return
		}
	}
}

func (m *statusMonitor) fail(err error) {
	m.log.Warnw("status monitor stopped", "error", err)
	m.lastErr.Store(err)
}
