package usbserial

import (
	"fmt"
	"time"
)

// USB class codes used by the drivers.
const (
	ClassComm    uint8 = 0x02
	ClassCDCData uint8 = 0x0A
)

// Direction of an endpoint, seen from the host.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// TransferType of an endpoint.
type TransferType int

const (
	TransferControl TransferType = iota
	TransferIsochronous
	TransferBulk
	TransferInterrupt
)

func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	}
	return fmt.Sprintf("TransferType(%d)", int(t))
}

// Endpoint describes one endpoint of an interface.
type Endpoint struct {
	Address       uint8
	Number        int
	Direction     Direction
	Type          TransferType
	MaxPacketSize int
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("ep 0x%02x %s %s (%d bytes)", e.Address, e.Type, e.Direction, e.MaxPacketSize)
}

// Interface describes alternate setting 0 of a USB interface.
type Interface struct {
	Number    int
	Class     uint8
	SubClass  uint8
	Protocol  uint8
	Endpoints []*Endpoint
}

// Device is a USB device as enumerated by a Transport.
type Device struct {
	ID         int
	Name       string
	VendorID   uint16
	ProductID  uint16
	Class      uint8
	Interfaces []*Interface
}

// InterfaceCount returns the number of interfaces of the active configuration.
func (d *Device) InterfaceCount() int {
	return len(d.Interfaces)
}

// Interface returns the interface at index i, or nil.
func (d *Device) Interface(i int) *Interface {
	if i < 0 || i >= len(d.Interfaces) {
		return nil
	}
	return d.Interfaces[i]
}

func (d *Device) String() string {
	return fmt.Sprintf("%04x:%04x (id %d)", d.VendorID, d.ProductID, d.ID)
}

// Transport enumerates devices and opens connections to them.
type Transport interface {
	Devices() ([]*Device, error)
	Open(dev *Device) (Connection, error)
}

// Connection is an open device handle. Transfers that run out of time
// return an error matching ErrTimeout.
type Connection interface {
	ClaimInterface(intf *Interface, force bool) error
	ReleaseInterface(intf *Interface) error
	BulkTransfer(ep *Endpoint, buf []byte, timeout time.Duration) (int, error)
	ControlTransfer(requestType, request uint8, value, index uint16, buf []byte, timeout time.Duration) (int, error)
	RawDescriptors() ([]byte, error)
	Close() error
}

func findEndpoint(intf *Interface, dir Direction, typ TransferType) *Endpoint {
	for _, ep := range intf.Endpoints {
		if ep.Direction == dir && ep.Type == typ {
			return ep
		}
	}
	return nil
}

func findEndpointByAddress(intf *Interface, addr uint8) *Endpoint {
	for _, ep := range intf.Endpoints {
		if ep.Address == addr {
			return ep
		}
	}
	return nil
}
