package usbserial

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Driver owns one USB device and exposes its ports.
type Driver interface {
	Device() *Device
	// Ports returns the ports of the device. The list is built on the
	// first call and cached.
	Ports() []Port
	// Close closes every open port and the device connection. Calling
	// it again is a no-op.
	Close() error
}

// Factory builds a driver for dev.
type Factory func(t Transport, dev *Device, log *zap.SugaredLogger) (Driver, error)

// DriverType describes one chip family.
type DriverType struct {
	Name string
	// SupportedDevices maps vendor IDs to the product IDs the driver
	// handles.
	SupportedDevices func() map[uint16][]uint16
	New              Factory
}

func (d *DriverType) String() string {
	return d.Name
}

// deviceHandle shares one connection among the ports of a driver.
// Connections and interface claims are reference counted so a port only
// gives back what it took.
type deviceHandle struct {
	mu        sync.Mutex
	transport Transport
	device    *Device
	log       *zap.SugaredLogger
	conn      Connection
	refs      int
	claims    map[int]int
}

func newDeviceHandle(t Transport, dev *Device, log *zap.SugaredLogger) *deviceHandle {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &deviceHandle{
		transport: t,
		device:    dev,
		log:       log.With("device", dev.String()),
		claims:    make(map[int]int),
	}
}

func (h *deviceHandle) acquire() (Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		conn, err := h.transport.Open(h.device)
		if err != nil {
			return nil, fmt.Errorf("failed to open device %s: %w", h.device, err)
		}
		h.conn = conn
		h.log.Debug("connection opened")
	}
	h.refs++
	return h.conn, nil
}

func (h *deviceHandle) release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	return h.closeLocked()
}

func (h *deviceHandle) claim(intf *Interface) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return ErrPortClosed
	}
	if h.claims[intf.Number] == 0 {
		if err := h.conn.ClaimInterface(intf, true); err != nil {
			return fmt.Errorf("%w: interface %d: %w", ErrClaimFailed, intf.Number, err)
		}
		h.log.Debugw("interface claimed", "interface", intf.Number)
	}
	h.claims[intf.Number]++
	return nil
}

func (h *deviceHandle) unclaim(intf *Interface) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.claims[intf.Number] == 0 {
		return nil
	}
	h.claims[intf.Number]--
	if h.claims[intf.Number] > 0 || h.conn == nil {
		return nil
	}
	delete(h.claims, intf.Number)
	if err := h.conn.ReleaseInterface(intf); err != nil {
		return fmt.Errorf("failed to release interface %d: %w", intf.Number, err)
	}
	return nil
}

// shutdown drops the connection regardless of outstanding references.
func (h *deviceHandle) shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = 0
	return h.closeLocked()
}

func (h *deviceHandle) closeLocked() error {
	if h.conn == nil {
		return nil
	}
	var err error
	for num := range h.claims {
		if intf := h.device.Interface(num); intf != nil {
			err = multierr.Append(err, h.conn.ReleaseInterface(intf))
		}
	}
	h.claims = make(map[int]int)
	err = multierr.Append(err, h.conn.Close())
	h.conn = nil
	h.log.Debug("connection closed")
	return err
}

// driverBase implements Driver for the chip drivers. scan builds the
// ports on first use.
type driverBase struct {
	mu     sync.Mutex
	handle *deviceHandle
	scan   func() []Port
	ports  []Port
	closed bool
}

func (d *driverBase) Device() *Device {
	return d.handle.device
}

func (d *driverBase) Ports() []Port {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ports == nil {
		d.ports = d.scan()
	}
	return d.ports
}

func (d *driverBase) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var err error
	for _, p := range d.ports {
		if p.IsOpen() {
			err = multierr.Append(err, p.Close())
		}
	}
	return multierr.Append(err, d.handle.shutdown())
}
