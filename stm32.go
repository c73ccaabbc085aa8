package usbserial

import (
	"fmt"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/zap"
)

// Stm32Driver handles the STM32 virtual COM port and ST-LINK bridges.
// They speak CDC ACM but the control interface is found by class, and
// its number addresses the class requests.
var Stm32Driver = &DriverType{
	Name:             "STM32",
	SupportedDevices: stm32SupportedDevices,
	New:              newStm32Driver,
}

func stm32SupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorSTM: {usbid.STMVirtualCOM, usbid.STMSTLink},
	}
}

type stm32Driver struct {
	driverBase
}

func newStm32Driver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("stm32: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &stm32Driver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		return []Port{&stm32Port{portState: newPortState(d, d.handle, 0)}}
	}
	return d, nil
}

type stm32Port struct {
	portState
	ctrlIndex uint16
	dtr       bool
	rts       bool
}

var _ Port = (*stm32Port)(nil)
var _ BreakSetter = (*stm32Port)(nil)

func (p *stm32Port) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		dev := p.handle.device

		var ctrl, data *Interface
		for _, intf := range dev.Interfaces {
			if ctrl == nil && intf.Class == ClassComm {
				ctrl = intf
			}
			if data == nil && intf.Class == ClassCDCData {
				data = intf
			}
		}
		if ctrl == nil {
			return fmt.Errorf("stm32: %w: no communications interface", ErrNoInterface)
		}
		if err := p.claim(ctrl); err != nil {
			return err
		}
		p.ctrlIndex = uint16(ctrl.Number)

		if data == nil {
			return fmt.Errorf("stm32: %w: no cdc data interface", ErrNoInterface)
		}
		if err := p.claim(data); err != nil {
			return err
		}
		p.readEp = findEndpoint(data, DirectionIn, TransferBulk)
		p.writeEp = findEndpoint(data, DirectionOut, TransferBulk)
		if p.readEp == nil || p.writeEp == nil {
			return fmt.Errorf("stm32: %w: data interface %d", ErrNoEndpoint, data.Number)
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

func (p *stm32Port) Close() error {
	return p.closeWith(nil)
}

func (p *stm32Port) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *stm32Port) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	msg, err := lineCoding(baudRate, dataBits, stopBits, parity)
	if err != nil {
		return err
	}
	return sendACM(conn, p.ctrlIndex, acmSetLineCoding, 0, msg)
}

func (p *stm32Port) GetCD() (bool, error)  { return false, nil }
func (p *stm32Port) GetCTS() (bool, error) { return false, nil }
func (p *stm32Port) GetDSR() (bool, error) { return false, nil }
func (p *stm32Port) GetRI() (bool, error)  { return false, nil }

func (p *stm32Port) GetDTR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dtr, nil
}

func (p *stm32Port) GetRTS() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rts, nil
}

func (p *stm32Port) SetDTR(state bool) error {
	return p.control(func(conn Connection) error {
		p.dtr = state
		return sendACM(conn, p.ctrlIndex, acmSetControlLineState, controlLineState(p.dtr, p.rts), nil)
	})
}

func (p *stm32Port) SetRTS(state bool) error {
	return p.control(func(conn Connection) error {
		p.rts = state
		return sendACM(conn, p.ctrlIndex, acmSetControlLineState, controlLineState(p.dtr, p.rts), nil)
	})
}

func (p *stm32Port) SetBreak(on bool) error {
	return p.control(func(conn Connection) error {
		return sendACM(conn, p.ctrlIndex, acmSendBreak, breakValue(on), nil)
	})
}

func (p *stm32Port) Purge(rx, tx bool) error {
	return p.control(func(Connection) error { return nil })
}
