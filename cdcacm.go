package usbserial

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/allbin/go-usbserial/internal/usbid"
	"go.uber.org/zap"
)

const (
	acmRequestType = 0x21

	acmSetLineCoding       = 0x20
	acmSetControlLineState = 0x22
	acmSendBreak           = 0x23

	acmTimeout = 5000 * time.Millisecond
)

// CdcAcmDriver handles CDC ACM devices such as Arduino boards.
var CdcAcmDriver = &DriverType{
	Name:             "CDC-ACM",
	SupportedDevices: cdcAcmSupportedDevices,
	New:              newCdcAcmDriver,
}

func cdcAcmSupportedDevices() map[uint16][]uint16 {
	return map[uint16][]uint16{
		usbid.VendorArduino: {
			usbid.ArduinoUno,
			usbid.ArduinoUnoR3,
			usbid.ArduinoMega2560,
			usbid.ArduinoMega2560R3,
			usbid.ArduinoSerialAdapter,
			usbid.ArduinoSerialAdapterR3,
			usbid.ArduinoMegaADK,
			usbid.ArduinoMegaADKR3,
			usbid.ArduinoLeonardo,
			usbid.ArduinoMicro,
		},
		usbid.VendorVanOoijen: {usbid.VanOoijenTeensyduino},
		usbid.VendorAtmel:     {usbid.AtmelLUFACDC},
		usbid.VendorLeafLabs:  {usbid.LeafLabsMaple},
		usbid.VendorElatec: {
			usbid.ElatecTWN3CDC,
			usbid.ElatecTWN4MifareNFC,
			usbid.ElatecTWN4CDC,
		},
	}
}

type cdcAcmDriver struct {
	driverBase
}

func newCdcAcmDriver(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error) {
	if t == nil || dev == nil {
		return nil, fmt.Errorf("cdc-acm: %w: nil transport or device", ErrInvalidParameter)
	}
	d := &cdcAcmDriver{}
	d.handle = newDeviceHandle(t, dev, log)
	d.scan = func() []Port {
		return []Port{&cdcAcmPort{portState: newPortState(d, d.handle, 0)}}
	}
	return d, nil
}

type cdcAcmPort struct {
	portState
	ctrlIntf *Interface
	dataIntf *Interface
	ctrlEp   *Endpoint
	dtr      bool
	rts      bool
}

var _ Port = (*cdcAcmPort)(nil)
var _ BreakSetter = (*cdcAcmPort)(nil)

func (p *cdcAcmPort) Open(cfg Config) error {
	return p.openWith(cfg, func(conn Connection) error {
		dev := p.handle.device
		var err error
		switch dev.InterfaceCount() {
		case 0:
			err = fmt.Errorf("cdc-acm: %w: device has no interfaces", ErrNoInterface)
		case 1:
			err = p.openSingleInterface()
		default:
			err = p.openInterfaces()
		}
		if err != nil {
			p.ctrlEp = nil
			p.ctrlIntf, p.dataIntf = nil, nil
			return err
		}
		return p.setParameters(conn, cfg.BaudRate, cfg.DataBits, cfg.StopBits, cfg.Parity)
	})
}

// openSingleInterface handles devices that put the control, read and
// write endpoints on one interface.
func (p *cdcAcmPort) openSingleInterface() error {
	intf := p.handle.device.Interface(0)
	p.log.Debug("single interface device")
	if err := p.claim(intf); err != nil {
		return err
	}
	if len(intf.Endpoints) < 3 {
		return fmt.Errorf("cdc-acm: %w: need 3 endpoints, have %d", ErrNoEndpoint, len(intf.Endpoints))
	}
	p.ctrlIntf, p.dataIntf = intf, intf
	p.ctrlEp = findEndpoint(intf, DirectionIn, TransferInterrupt)
	p.readEp = findEndpoint(intf, DirectionIn, TransferBulk)
	p.writeEp = findEndpoint(intf, DirectionOut, TransferBulk)
	if p.ctrlEp == nil || p.readEp == nil || p.writeEp == nil {
		return fmt.Errorf("cdc-acm: %w: could not establish all endpoints", ErrNoEndpoint)
	}
	return nil
}

func (p *cdcAcmPort) openInterfaces() error {
	dev := p.handle.device
	p.ctrlIntf = dev.Interface(0)
	if err := p.claim(p.ctrlIntf); err != nil {
		return err
	}
	if len(p.ctrlIntf.Endpoints) > 0 {
		p.ctrlEp = p.ctrlIntf.Endpoints[0]
	}

	p.dataIntf = dev.Interface(1)
	if err := p.claim(p.dataIntf); err != nil {
		return err
	}
	p.readEp = findEndpoint(p.dataIntf, DirectionIn, TransferBulk)
	p.writeEp = findEndpoint(p.dataIntf, DirectionOut, TransferBulk)
	if p.readEp == nil || p.writeEp == nil {
		return fmt.Errorf("cdc-acm: %w: data interface %d", ErrNoEndpoint, p.dataIntf.Number)
	}
	return nil
}

func (p *cdcAcmPort) Close() error {
	return p.closeWith(func(Connection) error {
		p.ctrlEp = nil
		p.ctrlIntf, p.dataIntf = nil, nil
		return nil
	})
}

func (p *cdcAcmPort) SetParameters(baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	return p.control(func(conn Connection) error {
		return p.setParameters(conn, baudRate, dataBits, stopBits, parity)
	})
}

func (p *cdcAcmPort) setParameters(conn Connection, baudRate, dataBits int, stopBits StopBits, parity Parity) error {
	msg, err := lineCoding(baudRate, dataBits, stopBits, parity)
	if err != nil {
		return err
	}
	return sendACM(conn, 0, acmSetLineCoding, 0, msg)
}

func (p *cdcAcmPort) GetCD() (bool, error)  { return false, nil }
func (p *cdcAcmPort) GetCTS() (bool, error) { return false, nil }
func (p *cdcAcmPort) GetDSR() (bool, error) { return false, nil }
func (p *cdcAcmPort) GetRI() (bool, error)  { return false, nil }

func (p *cdcAcmPort) GetDTR() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dtr, nil
}

func (p *cdcAcmPort) GetRTS() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rts, nil
}

func (p *cdcAcmPort) SetDTR(state bool) error {
	return p.control(func(conn Connection) error {
		p.dtr = state
		return sendACM(conn, 0, acmSetControlLineState, controlLineState(p.dtr, p.rts), nil)
	})
}

func (p *cdcAcmPort) SetRTS(state bool) error {
	return p.control(func(conn Connection) error {
		p.rts = state
		return sendACM(conn, 0, acmSetControlLineState, controlLineState(p.dtr, p.rts), nil)
	})
}

func (p *cdcAcmPort) SetBreak(on bool) error {
	return p.control(func(conn Connection) error {
		return sendACM(conn, 0, acmSendBreak, breakValue(on), nil)
	})
}

func (p *cdcAcmPort) Purge(rx, tx bool) error {
	return p.control(func(Connection) error { return nil })
}

// lineCoding encodes the 7 byte CDC line coding structure.
func lineCoding(baudRate, dataBits int, stopBits StopBits, parity Parity) ([]byte, error) {
	var stop byte
	switch stopBits {
	case StopBitsOne:
		stop = 0
	case StopBitsOnePointFive:
		stop = 1
	case StopBitsTwo:
		stop = 2
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrUnsupportedParameter, stopBits)
	}
	if parity < ParityNone || parity > ParitySpace {
		return nil, fmt.Errorf("%w: parity %d", ErrUnsupportedParameter, parity)
	}
	if dataBits < 5 || dataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", ErrUnsupportedParameter, dataBits)
	}
	if baudRate <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", ErrUnsupportedParameter, baudRate)
	}

	msg := make([]byte, 7)
	binary.LittleEndian.PutUint32(msg, uint32(baudRate))
	msg[4] = stop
	msg[5] = byte(parity)
	msg[6] = byte(dataBits)
	return msg, nil
}

// controlLineState packs DTR into bit 0 and RTS into bit 1.
func controlLineState(dtr, rts bool) uint16 {
	var v uint16
	if dtr {
		v |= 0x01
	}
	if rts {
		v |= 0x02
	}
	return v
}

func breakValue(on bool) uint16 {
	if on {
		return 0xffff
	}
	return 0
}

func sendACM(conn Connection, index uint16, request uint8, value uint16, data []byte) error {
	return controlOut(conn, fmt.Sprintf("acm request 0x%02x", request), acmRequestType, request, value, index, data, acmTimeout)
}
