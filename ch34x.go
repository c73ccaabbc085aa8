package usbserial

import (
	"fmt"
	"time"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/zap"
)

const (
	ch34xTimeout = 5000 * time.Millisecond

	ch34xVendorOut = 0x40
	ch34xVendorIn  = 0xC0

	ch34xDefaultBaudRate = 9600

	ch34xLCREnableRX  = 0x80
	ch34xLCREnableTX  = 0x40
	ch34xLCRMarkSpace = 0x20
	ch34xLCRParEven   = 0x10
	ch34xLCREnablePar = 0x08
	ch34xLCRStopBits2 = 0x04
	ch34xLCRCS8       = 0x03
	ch34xLCRCS7       = 0x02
	ch34xLCRCS6       = 0x01
	ch34xLCRCS5       = 0x00

	ch34xSCLDTR = 0x20
	ch34xSCLRTS = 0x40
)

// ch34xBaudRates maps supported baud rates to the two divisor register
// values.
var ch34xBaudRates = map[int][2]uint16{
	2400:   {0xd901, 0x0038},
	4800:   {0x6402, 0x001f},
	9600:   {0xb202, 0x0013},
	19200:  {0xd902, 0x000d},
	38400:  {0x6403, 0x000a},
	115200: {0xcc03, 0x0008},
}

// Ch34xDriver handles WCH CH340/CH341 adapters.
var Ch34xDriver = &DriverType{
	Name:             "CH34x",
	SupportedDevices: ch34xSupportedDevices,
	New:              newCh34xDriver,
}

func ch34xSupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorQinHeng: {usbid.QinHengHL340},
	}
}

type ch34xDriver struct {
	driverBase
}

func newCh34xDriver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("ch34x: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &ch34xDriver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		return []Port{&ch34xPort{portState: newPortState(d, d.handle, 0)}}
	}
	return d, nil
}

type ch34xPort struct {
	portState
	dtr bool
	rts bool
}

var _ Port = (*ch34xPort)(nil)

func (p *ch34xPort) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		dev := p.handle.device
		if dev.InterfaceCount() == 0 {
			return fmt.Errorf("ch34x: %w: device has no interfaces", ErrNoInterface)
		}
		for _, intf := range dev.Interfaces {
			if err := p.claim(intf); err != nil {
				return err
			}
		}

		data := dev.Interface(dev.InterfaceCount() - 1)
		p.readEp = findEndpoint(data, DirectionIn, TransferBulk)
		p.writeEp = findEndpoint(data, DirectionOut, TransferBulk)

		if err := p.initialize(conn); err != nil {
			return err
		}
		if err := p.setBaudRate(conn, ch34xDefaultBaudRate); err != nil {
			return err
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

func (p *ch34xPort) Close() error {
	return p.closeWith(nil)
}

// initialize runs the vendor handshake. Each check compares the device
// response against known values; -1 accepts any byte.
func (p *ch34xPort) initialize(conn Connection) error {
	if err := p.checkState(conn, "init #1", 0x5f, 0, []int{-1, 0x00}); err != nil {
		return err
	}
	if err := p.out(conn, "init #2", 0xa1, 0, 0); err != nil {
		return err
	}
	if err := p.setBaudRate(conn, ch34xDefaultBaudRate); err != nil {
		return err
	}
	if err := p.checkState(conn, "init #4", 0x95, 0x2518, []int{-1, 0x00}); err != nil {
		return err
	}
	if err := p.out(conn, "init #5", 0x9a, 0x2518, 0x0050); err != nil {
		return err
	}
	if err := p.checkState(conn, "init #6", 0x95, 0x0706, []int{-1, -1}); err != nil {
		return err
	}
	if err := p.out(conn, "init #7", 0xa1, 0x501f, 0xd90a); err != nil {
		return err
	}
	if err := p.setBaudRate(conn, ch34xDefaultBaudRate); err != nil {
		return err
	}
	if err := p.setControlLines(conn); err != nil {
		return err
	}
	return p.checkState(conn, "init #10", 0x95, 0x0706, []int{-1, 0xee})
}

func (p *ch34xPort) checkState(conn Connection, step string, request uint8, value uint16, expected []int) error {
	buf := make([]byte, len(expected))
	n, err := conn.ControlTransfer(ch34xVendorIn, request, value, 0, buf, ch34xTimeout)
	if err != nil {
		return &TransferError{Op: "ch34x " + step, Result: n, Expected: len(expected), Err: err}
	}
	if n != len(expected) {
		return &VerificationError{Step: step, Expected: expected, Actual: buf[:max(n, 0)]}
	}
	for i, want := range expected {
		if want >= 0 && int(buf[i]) != want {
			return &VerificationError{Step: step, Expected: expected, Actual: buf}
		}
	}
	return nil
}

func (p *ch34xPort) out(conn Connection, op string, request uint8, value, index uint16) error {
	return controlOut(conn, "ch34x "+op, ch34xVendorOut, request, value, index, nil, ch34xTimeout)
}

func (p *ch34xPort) setBaudRate(conn Connection, baudRate int) error {
	div, ok := ch34xBaudRates[baudRate]
	if !ok {
		return fmt.Errorf("%w: baud rate %d", ErrUnsupportedParameter, baudRate)
	}
	if err := p.out(conn, "set baud rate #1", 0x9a, 0x1312, div[0]); err != nil {
		return err
	}
	return p.out(conn, "set baud rate #2", 0x9a, 0x0f2c, div[1])
}

func (p *ch34xPort) setControlLines(conn Connection) error {
	var lines uint16
	if p.dtr {
		lines |= ch34xSCLDTR
	}
	if p.rts {
		lines |= ch34xSCLRTS
	}
	return p.out(conn, "set control lines", 0xa4, ^lines, 0)
}

func (p *ch34xPort) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *ch34xPort) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	if _, ok := ch34xBaudRates[baudRate]; !ok {
		return fmt.Errorf("%w: baud rate %d", ErrUnsupportedParameter, baudRate)
	}
	lcr, err := ch34xLineControl(dataBits, stopBits, parity)
	if err != nil {
		return err
	}
	if err := p.setBaudRate(conn, baudRate); err != nil {
		return err
	}
	return p.out(conn, "set line control", 0x9a, 0x2518, lcr)
}

func ch34xLineControl(dataBits int, stopBits StopBits, parity Parity) (uint16, error) {
	lcr := uint16(ch34xLCREnableRX | ch34xLCREnableTX)

	switch dataBits {
	case 5:
		lcr |= ch34xLCRCS5
	case 6:
		lcr |= ch34xLCRCS6
	case 7:
		lcr |= ch34xLCRCS7
	case 8:
		lcr |= ch34xLCRCS8
	default:
		return 0, fmt.Errorf("%w: data bits %d", ErrInvalidParameter, dataBits)
	}

	switch parity {
	case ParityNone:
	case ParityOdd:
		lcr |= ch34xLCREnablePar
	case ParityEven:
		lcr |= ch34xLCREnablePar | ch34xLCRParEven
	case ParityMark:
		lcr |= ch34xLCREnablePar | ch34xLCRMarkSpace
	case ParitySpace:
		lcr |= ch34xLCREnablePar | ch34xLCRMarkSpace | ch34xLCRParEven
	default:
		return 0, fmt.Errorf("%w: parity %d", ErrInvalidParameter, parity)
	}

	switch stopBits {
	case StopBitsOne:
	case StopBitsOnePointFive:
		return 0, fmt.Errorf("%w: stop bits 1.5", ErrUnsupportedParameter)
	case StopBitsTwo:
		lcr |= ch34xLCRStopBits2
	default:
		return 0, fmt.Errorf("%w: stop bits %d", ErrInvalidParameter, stopBits)
	}
	return lcr, nil
}

func (p *ch34xPort) GetCD() (bool, error)  { return false, nil }
func (p *ch34xPort) GetCTS() (bool, error) { return false, nil }
func (p *ch34xPort) GetDSR() (bool, error) { return false, nil }
func (p *ch34xPort) GetRI() (bool, error)  { return false, nil }

func (p *ch34xPort) GetDTR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dtr, nil
}

func (p *ch34xPort) GetRTS() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rts, nil
}

func (p *ch34xPort) SetDTR(state bool) error {
	return p.control(func(conn Connection) error {
		p.dtr = state
		return p.setControlLines(conn)
	})
}

func (p *ch34xPort) SetRTS(state bool) error {
	return p.control(func(conn Connection) error {
		p.rts = state
		return p.setControlLines(conn)
	})
}

func (p *ch34xPort) Purge(rx, tx bool) error {
	return p.control(func(Connection) error { return nil })
}
