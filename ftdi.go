package usbserial

import (
	"fmt"
	"math"
	"time"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/zap"
)

const (
	ftdiVendorOut = 0x40
	ftdiVendorIn  = 0xC0

	ftdiResetRequest          = 0
	ftdiModemControlRequest   = 1
	ftdiSetBaudRateRequest    = 3
	ftdiSetDataRequest        = 4
	ftdiGetModemStatusRequest = 5

	ftdiDTREnable  = 0x0101
	ftdiDTRDisable = 0x0100
	ftdiRTSEnable  = 0x0202
	ftdiRTSDisable = 0x0200

	ftdiStatusCTS = 0x10
	ftdiStatusDSR = 0x20
	ftdiStatusRI  = 0x40
	ftdiStatusCD  = 0x80

	ftdiResetAll     = 0
	ftdiResetPurgeRX = 1
	ftdiResetPurgeTX = 2

	ftdiReadHeaderLength = 2
	ftdiTimeout          = 5000 * time.Millisecond
)

// FtdiDriver handles FTDI FT232/FT2232/FT4232/FT231X chips. Multi
// interface chips expose one port per interface.
var FtdiDriver = &DriverType{
	Name:             "FTDI",
	SupportedDevices: ftdiSupportedDevices,
	New:              newFtdiDriver,
}

func ftdiSupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorFTDI: {
			usbid.FTDIFT232R,
			usbid.FTDIFT232H,
			usbid.FTDIFT2232H,
			usbid.FTDIFT4232H,
			usbid.FTDIFT231X,
		},
	}
}

type ftdiDriver struct {
	driverBase
}

func newFtdiDriver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("ftdi: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &ftdiDriver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		ports := make([]Port, 0, dev.InterfaceCount())
		for i := 0; i < dev.InterfaceCount(); i++ {
			ports = append(ports, &ftdiPort{portState: newPortState(d, d.handle, i)})
		}
		return ports
	}
	return d, nil
}

type ftdiPort struct {
	portState
	dtr bool
	rts bool
}

var _ Port = (*ftdiPort)(nil)

func (p *ftdiPort) index() uint16 {
	return uint16(p.number + 1)
}

func (p *ftdiPort) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		dev := p.handle.device
		for _, intf := range dev.Interfaces {
			if err := p.claim(intf); err != nil {
				return err
			}
		}

		intf := dev.Interface(p.number)
		if intf == nil {
			return fmt.Errorf("ftdi: %w: port %d", ErrNoInterface, p.number)
		}
		p.readEp = findEndpoint(intf, DirectionIn, TransferBulk)
		p.writeEp = findEndpoint(intf, DirectionOut, TransferBulk)
		if p.readEp == nil || p.writeEp == nil {
			return fmt.Errorf("ftdi: %w: interface %d", ErrNoEndpoint, intf.Number)
		}

		if err := p.vendorOut(conn, "reset", ftdiResetRequest, ftdiResetAll, p.index()); err != nil {
			return err
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

func (p *ftdiPort) Close() error {
	return p.closeWith(nil)
}

// Read strips the two status bytes that lead every max packet sized
// chunk of the transfer.
func (p *ftdiPort) Read(buf []byte, timeout time.Duration) (int, error) {
	return p.readWith(buf, timeout, ftdiFilter)
}

func ftdiFilter(dst, raw []byte, maxPacket int) (int, error) {
	if maxPacket <= ftdiReadHeaderLength {
		maxPacket = len(raw)
	}
	pos := 0
	for src := 0; src < len(raw); src += maxPacket {
		end := min(src+maxPacket, len(raw))
		if end-src < ftdiReadHeaderLength {
			return pos, &TransferError{
				Op:       "ftdi read",
				Result:   end - src,
				Expected: ftdiReadHeaderLength,
				Offset:   src,
				Total:    len(raw),
			}
		}
		pos += copy(dst[pos:], raw[src+ftdiReadHeaderLength:end])
	}
	return pos, nil
}

func (p *ftdiPort) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *ftdiPort) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	value, index, err := ftdiBaudDivisor(baudRate)
	if err != nil {
		return err
	}
	if p.handle.device.InterfaceCount() > 1 {
		index = index<<8 | p.index()
	}
	config, err := ftdiDataConfig(dataBits, stopBits, parity)
	if err != nil {
		return err
	}

	if err := p.vendorOut(conn, "set baud rate", ftdiSetBaudRateRequest, value, index); err != nil {
		return err
	}
	return p.vendorOut(conn, "set data", ftdiSetDataRequest, config, p.index())
}

// ftdiBaudDivisor computes the clock divisor of the 3 MHz base clock,
// returned as the value and index of the SET_BAUD_RATE request.
func ftdiBaudDivisor(baudRate int) (value, index uint16, err error) {
	var divisor, sub, effective int
	switch {
	case baudRate <= 0:
		return 0, 0, fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, baudRate)
	case baudRate > 3500000:
		return 0, 0, fmt.Errorf("%w: baud rate %d too high", ErrUnsupportedParameter, baudRate)
	case baudRate >= 2500000:
		divisor, sub, effective = 0, 0, 3000000
	case baudRate >= 1750000:
		divisor, sub, effective = 1, 0, 2000000
	default:
		divisor = (48000000/baudRate + 1) >> 1
		sub = divisor & 0x07
		divisor >>= 3
		// exceeds bit 13 at 183 baud
		if divisor > 0x3fff {
			return 0, 0, fmt.Errorf("%w: baud rate %d too low", ErrUnsupportedParameter, baudRate)
		}
		effective = (48000000/((divisor<<3)+sub) + 1) >> 1
	}

	deviation := math.Abs(1.0 - float64(effective)/float64(baudRate))
	if deviation >= 0.031 {
		return 0, 0, fmt.Errorf("%w: baud rate %d deviates %.1f%% (max 3%%)", ErrUnsupportedParameter, baudRate, deviation*100)
	}

	value = uint16(divisor)
	switch sub {
	case 4:
		value |= 0x4000
	case 2:
		value |= 0x8000
	case 1:
		value |= 0xc000
	case 3:
		index = 1
	case 5:
		value |= 0x4000
		index = 1
	case 6:
		value |= 0x8000
		index = 1
	case 7:
		value |= 0xc000
		index = 1
	}
	return value, index, nil
}

func ftdiDataConfig(dataBits int, stopBits StopBits, parity Parity) (uint16, error) {
	var config uint16
	switch dataBits {
	case 7, 8:
		config = uint16(dataBits)
	case 5, 6:
		return 0, fmt.Errorf("%w: data bits %d", ErrUnsupportedParameter, dataBits)
	default:
		return 0, fmt.Errorf("%w: data bits %d", ErrInvalidParameter, dataBits)
	}

	switch parity {
	case ParityNone:
	case ParityOdd:
		config |= 0x100
	case ParityEven:
		config |= 0x200
	case ParityMark:
		config |= 0x300
	case ParitySpace:
		config |= 0x400
	default:
		return 0, fmt.Errorf("%w: parity %d", ErrInvalidParameter, parity)
	}

	switch stopBits {
	case StopBitsOne:
	case StopBitsOnePointFive:
		return 0, fmt.Errorf("%w: stop bits 1.5", ErrUnsupportedParameter)
	case StopBitsTwo:
		config |= 0x1000
	default:
		return 0, fmt.Errorf("%w: stop bits %d", ErrInvalidParameter, stopBits)
	}
	return config, nil
}

func (p *ftdiPort) status() (byte, error) {
	var status byte
	err := p.control(func(conn Connection) error {
		data, err := controlIn(conn, "get modem status", ftdiVendorIn, ftdiGetModemStatusRequest, 0, p.index(), 2, ftdiTimeout)
		if err != nil {
			return err
		}
		status = data[0]
		return nil
	})
	return status, err
}

func (p *ftdiPort) statusBit(mask byte) (bool, error) {
	status, err := p.status()
	if err != nil {
		return false, err
	}
	return status&mask != 0, nil
}

func (p *ftdiPort) GetCD() (bool, error)  { return p.statusBit(ftdiStatusCD) }
func (p *ftdiPort) GetCTS() (bool, error) { return p.statusBit(ftdiStatusCTS) }
func (p *ftdiPort) GetDSR() (bool, error) { return p.statusBit(ftdiStatusDSR) }
func (p *ftdiPort) GetRI() (bool, error)  { return p.statusBit(ftdiStatusRI) }

func (p *ftdiPort) GetDTR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dtr, nil
}

func (p *ftdiPort) GetRTS() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rts, nil
}

func (p *ftdiPort) SetDTR(state bool) error {
	return p.control(func(conn Connection) error {
		value := uint16(ftdiDTRDisable)
		if state {
			value = ftdiDTREnable
		}
		if err := p.vendorOut(conn, "set dtr", ftdiModemControlRequest, value, p.index()); err != nil {
			return err
		}
		p.dtr = state
		return nil
	})
}

func (p *ftdiPort) SetRTS(state bool) error {
	return p.control(func(conn Connection) error {
		value := uint16(ftdiRTSDisable)
		if state {
			value = ftdiRTSEnable
		}
		if err := p.vendorOut(conn, "set rts", ftdiModemControlRequest, value, p.index()); err != nil {
			return err
		}
		p.rts = state
		return nil
	})
}

func (p *ftdiPort) Purge(rx, tx bool) error {
	return p.control(func(conn Connection) error {
		if rx {
			if err := p.vendorOut(conn, "purge rx", ftdiResetRequest, ftdiResetPurgeRX, p.index()); err != nil {
				return err
			}
		}
		if tx {
			return p.vendorOut(conn, "purge tx", ftdiResetRequest, ftdiResetPurgeTX, p.index())
		}
		return nil
	})
}

func (p *ftdiPort) vendorOut(conn Connection, op string, request uint8, value, index uint16) error {
	return controlOut(conn, "ftdi "+op, ftdiVendorOut, request, value, index, nil, ftdiTimeout)
}
