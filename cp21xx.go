package usbserial

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/zap"
)

const (
	cp21xxTimeout = 5000 * time.Millisecond

	cp21xxHostToDevice = 0x41
	cp21xxDeviceToHost = 0xC1

	cp21xxIfcEnable      = 0x00
	cp21xxSetBaudDiv     = 0x01
	cp21xxSetLineCtl     = 0x03
	cp21xxSetMHS         = 0x07
	cp21xxGetModemStatus = 0x08
	cp21xxFlush          = 0x12
	cp21xxSetBaudRate    = 0x1E

	cp21xxFlushRead  = 0x0a
	cp21xxFlushWrite = 0x05

	cp21xxUARTEnable  = 0x0001
	cp21xxUARTDisable = 0x0000

	cp21xxBaudRateGenFreq = 0x384000

	cp21xxMCRDTR          = 0x0001
	cp21xxMCRRTS          = 0x0002
	cp21xxMCRAll          = 0x0003
	cp21xxControlWriteDTR = 0x0100
	cp21xxControlWriteRTS = 0x0200

	cp21xxStatusCTS = 0x10
	cp21xxStatusDSR = 0x20
	cp21xxStatusRI  = 0x40
	cp21xxStatusCD  = 0x80
)

// Cp21xxDriver handles Silicon Labs CP210x bridges.
var Cp21xxDriver = &DriverType{
	Name:             "CP21xx",
	SupportedDevices: cp21xxSupportedDevices,
	New:              newCp21xxDriver,
}

func cp21xxSupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorSiLabs: {
			usbid.SiLabsCP2102,
			usbid.SiLabsCP2105,
			usbid.SiLabsCP2108,
			usbid.SiLabsCP2110,
		},
	}
}

type cp21xxDriver struct {
	driverBase
}

func newCp21xxDriver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("cp21xx: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &cp21xxDriver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		return []Port{&cp21xxPort{portState: newPortState(d, d.handle, 0)}}
	}
	return d, nil
}

type cp21xxPort struct {
	portState
	ifc uint16
}

var _ Port = (*cp21xxPort)(nil)

func (p *cp21xxPort) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		dev := p.handle.device
		if dev.InterfaceCount() == 0 {
			return fmt.Errorf("cp21xx: %w: device has no interfaces", ErrNoInterface)
		}
		for _, intf := range dev.Interfaces {
			if err := p.claim(intf); err != nil {
				return err
			}
		}

		data := dev.Interface(dev.InterfaceCount() - 1)
		p.ifc = uint16(data.Number)
		p.readEp = findEndpoint(data, DirectionIn, TransferBulk)
		p.writeEp = findEndpoint(data, DirectionOut, TransferBulk)

		if err := p.setConfig(conn, cp21xxIfcEnable, cp21xxUARTEnable); err != nil {
			return err
		}
		if err := p.setConfig(conn, cp21xxSetMHS, cp21xxMCRAll|cp21xxControlWriteDTR|cp21xxControlWriteRTS); err != nil {
			return err
		}
		if err := p.setConfig(conn, cp21xxSetBaudDiv, cp21xxBaudRateGenFreq/9600); err != nil {
			return err
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

func (p *cp21xxPort) Close() error {
	return p.closeWith(func(conn Connection) error {
		return p.setConfig(conn, cp21xxIfcEnable, cp21xxUARTDisable)
	})
}

func (p *cp21xxPort) setConfig(conn Connection, request uint8, value uint16) error {
	return controlOut(conn, fmt.Sprintf("cp21xx request 0x%02x", request), cp21xxHostToDevice, request, value, p.ifc, nil, cp21xxTimeout)
}

func (p *cp21xxPort) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *cp21xxPort) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	if baudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, baudRate)
	}
	lineCtl, err := cp21xxLineControl(dataBits, stopBits, parity)
	if err != nil {
		return err
	}

	baud := make([]byte, 4)
	binary.LittleEndian.PutUint32(baud, uint32(baudRate))
	if err := controlOut(conn, "cp21xx set baud rate", cp21xxHostToDevice, cp21xxSetBaudRate, 0, p.ifc, baud, cp21xxTimeout); err != nil {
		return err
	}
	return p.setConfig(conn, cp21xxSetLineCtl, lineCtl)
}

// cp21xxLineControl packs data bits into the high byte, parity into
// bits 4-7 and stop bits into bits 0-3.
func cp21xxLineControl(dataBits int, stopBits StopBits, parity Parity) (uint16, error) {
	if dataBits < 5 || dataBits > 8 {
		return 0, fmt.Errorf("%w: data bits %d", ErrUnsupportedParameter, dataBits)
	}
	value := uint16(dataBits) << 8

	switch parity {
	case ParityNone:
	case ParityOdd:
		value |= 0x0010
	case ParityEven:
		value |= 0x0020
	case ParityMark:
		value |= 0x0030
	case ParitySpace:
		value |= 0x0040
	default:
		return 0, fmt.Errorf("%w: parity %d", ErrUnsupportedParameter, parity)
	}

	switch stopBits {
	case StopBitsOne:
	case StopBitsOnePointFive:
		value |= 1
	case StopBitsTwo:
		value |= 2
	default:
		return 0, fmt.Errorf("%w: stop bits %d", ErrUnsupportedParameter, stopBits)
	}
	return value, nil
}

func (p *cp21xxPort) status() (byte, error) {
	var status byte
	err := p.control(func(conn Connection) error {
		data, err := controlIn(conn, "cp21xx get modem status", cp21xxDeviceToHost, cp21xxGetModemStatus, 0, p.ifc, 1, cp21xxTimeout)
		if err != nil {
			return err
		}
		status = data[0]
		return nil
	})
	return status, err
}

func (p *cp21xxPort) statusBit(mask byte) (bool, error) {
	status, err := p.status()
	if err != nil {
		return false, err
	}
	return status&mask != 0, nil
}

func (p *cp21xxPort) GetCD() (bool, error)  { return p.statusBit(cp21xxStatusCD) }
func (p *cp21xxPort) GetCTS() (bool, error) { return p.statusBit(cp21xxStatusCTS) }
func (p *cp21xxPort) GetDSR() (bool, error) { return p.statusBit(cp21xxStatusDSR) }
func (p *cp21xxPort) GetRI() (bool, error)  { return p.statusBit(cp21xxStatusRI) }
func (p *cp21xxPort) GetDTR() (bool, error) { return p.statusBit(cp21xxMCRDTR) }
func (p *cp21xxPort) GetRTS() (bool, error) { return p.statusBit(cp21xxMCRRTS) }

func (p *cp21xxPort) SetDTR(state bool) error {
	value := uint16(cp21xxControlWriteDTR)
	if state {
		value |= cp21xxMCRDTR
	}
	return p.control(func(conn Connection) error {
		return p.setConfig(conn, cp21xxSetMHS, value)
	})
}

func (p *cp21xxPort) SetRTS(state bool) error {
	value := uint16(cp21xxControlWriteRTS)
	if state {
		value |= cp21xxMCRRTS
	}
	return p.control(func(conn Connection) error {
		return p.setConfig(conn, cp21xxSetMHS, value)
	})
}

func (p *cp21xxPort) Purge(rx, tx bool) error {
	var value uint16
	if rx {
		value |= cp21xxFlushRead
	}
	if tx {
		value |= cp21xxFlushWrite
	}
	if value == 0 {
		return nil
	}
	return p.control(func(conn Connection) error {
		return p.setConfig(conn, cp21xxFlush, value)
	})
}
