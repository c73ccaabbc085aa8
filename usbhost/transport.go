// Package usbhost implements usbserial.Transport on top of libusb through
// github.com/google/gousb.
package usbhost

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	usbserial "github.com/allbin/go-usbserial"
)

// ErrDeviceGone is returned when a device disappeared between
// enumeration and open.
var ErrDeviceGone = errors.New("usb device no longer present")

const (
	descriptorRequestType = 0x80
	getDescriptorRequest  = 0x06
	deviceDescriptorValue = 0x0100
	deviceDescriptorSize  = 18
	descriptorTimeout     = time.Second
)

// Transport enumerates and opens devices through a libusb context.
type Transport struct {
	ctx *gousb.Context
	log *zap.SugaredLogger

	mu sync.Mutex
	// active configuration per device ID, as seen by the last Open
	active map[int]int
}

var _ usbserial.Transport = (*Transport)(nil)

// New creates a libusb context. Close releases it.
func New(log *zap.SugaredLogger) *Transport {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Transport{ctx: gousb.NewContext(), log: log, active: make(map[int]int)}
}

// Close releases the libusb context.
func (t *Transport) Close() error {
	return t.ctx.Close()
}

// DeviceID packs bus and address the way Devices numbers devices.
func DeviceID(bus, address int) int {
	return bus*1000 + address
}

// Devices lists every device on the bus without opening any of them.
// Interfaces are taken from the active configuration recorded by an earlier
// Open of the device. Devices never opened fall back to configuration 1,
// or the lowest numbered one when 1 does not exist.
func (t *Transport) Devices() ([]*usbserial.Device, error) {
	var found []*usbserial.Device
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		found = append(found, convertDevice(desc, t.activeConfig(DeviceID(desc.Bus, desc.Address))))
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate usb devices: %w", err)
	}
	t.log.Debugw("enumerated devices", "count", len(found))
	return found, nil
}

// Open opens the device with the bus and address encoded in dev.ID.
func (t *Transport) Open(dev *usbserial.Device) (usbserial.Connection, error) {
	d, err := t.openDevice(dev)
	if err != nil {
		return nil, err
	}

	if err := d.SetAutoDetach(true); err != nil {
		t.log.Debugw("auto detach not supported", "device", dev.String(), "error", err)
	}
	num, err := d.ActiveConfigNum()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to get active config of %s: %w", dev, err)
	}
	if described := t.recordActiveConfig(dev.ID, d.Desc, num); described != num {
		t.log.Warnw("active configuration differs from enumerated interfaces, rescan to refresh",
			"device", dev.String(), "active", num, "enumerated", described)
	}
	cfg, err := d.Config(num)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to select config %d of %s: %w", num, dev, err)
	}

	return &connection{
		dev:   d,
		cfg:   cfg,
		log:   t.log.With("device", dev.String()),
		intfs: make(map[int]*gousb.Interface),
		in:    make(map[uint8]*gousb.InEndpoint),
		out:   make(map[uint8]*gousb.OutEndpoint),
	}, nil
}

func (t *Transport) openDevice(dev *usbserial.Device) (*gousb.Device, error) {
	bus, addr := dev.ID/1000, dev.ID%1000
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == bus && desc.Address == addr
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", dev, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDeviceGone, dev)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	return devs[0], nil
}

func (t *Transport) activeConfig(id int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[id]
}

// recordActiveConfig stores num as the active configuration of device id
// and returns the configuration its interfaces were enumerated from.
func (t *Transport) recordActiveConfig(id int, desc *gousb.DeviceDesc, num int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	described := 0
	if desc != nil {
		if cfg, ok := selectConfig(desc, t.active[id]); ok {
			described = cfg.Number
		}
	}
	t.active[id] = num
	return described
}

// selectConfig returns configuration active of desc. An unknown active
// number (0 included) falls back to configuration 1, then to the lowest
// numbered configuration.
func selectConfig(desc *gousb.DeviceDesc, active int) (gousb.ConfigDesc, bool) {
	if cfg, ok := desc.Configs[active]; ok && active > 0 {
		return cfg, true
	}
	if cfg, ok := desc.Configs[1]; ok {
		return cfg, true
	}
	if len(desc.Configs) == 0 {
		return gousb.ConfigDesc{}, false
	}
	nums := make([]int, 0, len(desc.Configs))
	for n := range desc.Configs {
		nums = append(nums, n)
	}
	return desc.Configs[slices.Min(nums)], true
}

// convertDevice describes desc with the interfaces of configuration
// active, see selectConfig. Interfaces keep their descriptor positions;
// one without alternate settings is kept with its number only.
func convertDevice(desc *gousb.DeviceDesc, active int) *usbserial.Device {
	dev := &usbserial.Device{
		ID:        DeviceID(desc.Bus, desc.Address),
		Name:      fmt.Sprintf("bus %03d device %03d", desc.Bus, desc.Address),
		VendorID:  uint16(desc.Vendor),
		ProductID: uint16(desc.Product),
		Class:     uint8(desc.Class),
	}

	cfg, ok := selectConfig(desc, active)
	if !ok {
		return dev
	}

	for _, intf := range cfg.Interfaces {
		out := &usbserial.Interface{Number: intf.Number}
		dev.Interfaces = append(dev.Interfaces, out)
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		out.Class = uint8(alt.Class)
		out.SubClass = uint8(alt.SubClass)
		out.Protocol = uint8(alt.Protocol)
		for _, ep := range alt.Endpoints {
			out.Endpoints = append(out.Endpoints, convertEndpoint(ep))
		}
		slices.SortFunc(out.Endpoints, func(a, b *usbserial.Endpoint) int {
			return int(a.Address) - int(b.Address)
		})
	}
	return dev
}

func convertEndpoint(ep gousb.EndpointDesc) *usbserial.Endpoint {
	out := &usbserial.Endpoint{
		Address:       uint8(ep.Address),
		Number:        ep.Number,
		Direction:     usbserial.DirectionOut,
		MaxPacketSize: ep.MaxPacketSize,
	}
	if ep.Direction == gousb.EndpointDirectionIn {
		out.Direction = usbserial.DirectionIn
	}
	switch ep.TransferType {
	case gousb.TransferTypeControl:
		out.Type = usbserial.TransferControl
	case gousb.TransferTypeIsochronous:
		out.Type = usbserial.TransferIsochronous
	case gousb.TransferTypeBulk:
		out.Type = usbserial.TransferBulk
	case gousb.TransferTypeInterrupt:
		out.Type = usbserial.TransferInterrupt
	}
	return out
}

// connection is an open gousb device with its active configuration.
type connection struct {
	mu    sync.Mutex
	dev   *gousb.Device
	cfg   *gousb.Config
	log   *zap.SugaredLogger
	intfs map[int]*gousb.Interface
	in    map[uint8]*gousb.InEndpoint
	out   map[uint8]*gousb.OutEndpoint

	ctrlMu sync.Mutex
}

// ClaimInterface claims alternate setting 0 of intf. force needs no
// handling here: Open enables kernel driver auto detach for the whole
// device, so a bound kernel driver is always detached on claim.
func (c *connection) ClaimInterface(intf *usbserial.Interface, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.intfs[intf.Number]; ok {
		return nil
	}
	gi, err := c.cfg.Interface(intf.Number, 0)
	if err != nil {
		return err
	}
	c.intfs[intf.Number] = gi

	for _, ep := range intf.Endpoints {
		if ep.Type != usbserial.TransferBulk && ep.Type != usbserial.TransferInterrupt {
			continue
		}
		if ep.Direction == usbserial.DirectionIn {
			in, err := gi.InEndpoint(ep.Number)
			if err != nil {
				return multierr.Append(err, c.releaseLocked(intf))
			}
			c.in[ep.Address] = in
		} else {
			out, err := gi.OutEndpoint(ep.Number)
			if err != nil {
				return multierr.Append(err, c.releaseLocked(intf))
			}
			c.out[ep.Address] = out
		}
	}
	return nil
}

func (c *connection) ReleaseInterface(intf *usbserial.Interface) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(intf)
}

func (c *connection) releaseLocked(intf *usbserial.Interface) error {
	gi, ok := c.intfs[intf.Number]
	if !ok {
		return nil
	}
	for _, ep := range intf.Endpoints {
		delete(c.in, ep.Address)
		delete(c.out, ep.Address)
	}
	delete(c.intfs, intf.Number)
	gi.Close()
	return nil
}

func (c *connection) BulkTransfer(ep *usbserial.Endpoint, buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := transferContext(timeout)
	defer cancel()

	c.mu.Lock()
	in, isIn := c.in[ep.Address]
	out, isOut := c.out[ep.Address]
	c.mu.Unlock()

	var (
		n   int
		err error
	)
	switch {
	case isIn:
		n, err = in.ReadContext(ctx, buf)
	case isOut:
		n, err = out.WriteContext(ctx, buf)
	default:
		return 0, fmt.Errorf("endpoint 0x%02x is not claimed", ep.Address)
	}
	return n, mapError(err)
}

func (c *connection) ControlTransfer(requestType, request uint8, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if timeout == usbserial.InfiniteTimeout {
		c.dev.ControlTimeout = 0
	} else {
		c.dev.ControlTimeout = timeout
	}
	n, err := c.dev.Control(requestType, request, value, index, buf)
	return n, mapError(err)
}

// RawDescriptors reads the 18 byte device descriptor.
func (c *connection) RawDescriptors() ([]byte, error) {
	buf := make([]byte, deviceDescriptorSize)
	n, err := c.ControlTransfer(descriptorRequestType, getDescriptorRequest, deviceDescriptorValue, 0, buf, descriptorTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read device descriptor: %w", err)
	}
	return buf[:n], nil
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for num, gi := range c.intfs {
		gi.Close()
		delete(c.intfs, num)
	}
	clear(c.in)
	clear(c.out)
	err := c.cfg.Close()
	return multierr.Append(err, c.dev.Close())
}

func transferContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == usbserial.InfiniteTimeout || timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// mapError makes libusb timeouts match usbserial.ErrTimeout.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled) ||
		errors.Is(err, gousb.ErrorTimeout) {
		return fmt.Errorf("%w: %w", usbserial.ErrTimeout, err)
	}
	return err
}
