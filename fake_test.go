package usbserial

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

// controlCall records one control transfer. Data holds the OUT payload.
type controlCall struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Data        []byte
	Length      int
}

func (c controlCall) in() bool {
	return c.RequestType&0x80 != 0
}

// fakeConn is a scripted Connection. Unless a hook says otherwise,
// control transfers succeed with zeroed IN data and bulk reads time out.
type fakeConn struct {
	mu       sync.Mutex
	controls []controlCall
	writes   [][]byte
	claimed  map[int]int
	released []int
	closed   int

	descriptors []byte

	// controlHook may fill buf for IN requests and override the result.
	controlHook func(c controlCall, buf []byte) (n int, handled bool, err error)
	// bulkIn serves reads by endpoint address.
	bulkIn map[uint8]func(buf []byte, timeout time.Duration) (int, error)
	// writeLimit caps the bytes accepted per bulk write when > 0.
	writeLimit int
	writeErr   error
	claimErr   map[int]error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		claimed:  make(map[int]int),
		bulkIn:   make(map[uint8]func([]byte, time.Duration) (int, error)),
		claimErr: make(map[int]error),
	}
}

func (c *fakeConn) ClaimInterface(intf *Interface, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.claimErr[intf.Number]; err != nil {
		return err
	}
	c.claimed[intf.Number]++
	return nil
}

func (c *fakeConn) ReleaseInterface(intf *Interface) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, intf.Number)
	return nil
}

func (c *fakeConn) BulkTransfer(ep *Endpoint, buf []byte, timeout time.Duration) (int, error) {
	if ep.Direction == DirectionOut {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.writeErr != nil {
			return 0, c.writeErr
		}
		n := len(buf)
		if c.writeLimit > 0 {
			n = min(n, c.writeLimit)
		}
		c.writes = append(c.writes, bytes.Clone(buf[:n]))
		return n, nil
	}

	c.mu.Lock()
	fn := c.bulkIn[ep.Address]
	c.mu.Unlock()
	if fn == nil {
		time.Sleep(time.Millisecond)
		return 0, ErrTimeout
	}
	return fn(buf, timeout)
}

func (c *fakeConn) ControlTransfer(requestType, request uint8, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	call := controlCall{RequestType: requestType, Request: request, Value: value, Index: index, Length: len(buf)}
	if !call.in() {
		call.Data = bytes.Clone(buf)
	}

	c.mu.Lock()
	c.controls = append(c.controls, call)
	hook := c.controlHook
	c.mu.Unlock()

	if hook != nil {
		if n, ok, err := hook(call, buf); ok {
			return n, err
		}
	}
	if call.in() {
		clear(buf)
	}
	return len(buf), nil
}

func (c *fakeConn) RawDescriptors() ([]byte, error) {
	return c.descriptors, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) controlLog() []controlCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]controlCall(nil), c.controls...)
}

func (c *fakeConn) writeLog() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeConn) setBulkIn(addr uint8, fn func(buf []byte, timeout time.Duration) (int, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulkIn[addr] = fn
}

func (c *fakeConn) setControlHook(fn func(c controlCall, buf []byte) (int, bool, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlHook = fn
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = nil
	c.writes = nil
}

// fakeTransport hands out the same fakeConn for every open.
type fakeTransport struct {
	mu      sync.Mutex
	devices []*Device
	conn    *fakeConn
	opens   int
	openErr error
	listErr error
	lists   int
}

func newFakeTransport(devices ...*Device) *fakeTransport {
	return &fakeTransport{devices: devices, conn: newFakeConn()}
}

func (t *fakeTransport) Devices() ([]*Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lists++
	if t.listErr != nil {
		return nil, t.listErr
	}
	return t.devices, nil
}

func (t *fakeTransport) Open(dev *Device) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	t.opens++
	return t.conn, nil
}

func bulkIn(addr uint8, number, maxPacket int) *Endpoint {
	return &Endpoint{Address: addr, Number: number, Direction: DirectionIn, Type: TransferBulk, MaxPacketSize: maxPacket}
}

func bulkOut(addr uint8, number, maxPacket int) *Endpoint {
	return &Endpoint{Address: addr, Number: number, Direction: DirectionOut, Type: TransferBulk, MaxPacketSize: maxPacket}
}

func interruptIn(addr uint8, number int) *Endpoint {
	return &Endpoint{Address: addr, Number: number, Direction: DirectionIn, Type: TransferInterrupt, MaxPacketSize: 16}
}

func ftdiDevice(id, interfaces int) *Device {
	dev := &Device{ID: id, VendorID: 0x0403, ProductID: 0x6001}
	if interfaces > 1 {
		dev.ProductID = 0x6010
	}
	for i := 0; i < interfaces; i++ {
		dev.Interfaces = append(dev.Interfaces, &Interface{
			Number: i,
			Class:  0xff,
			Endpoints: []*Endpoint{
				bulkIn(uint8(0x81+2*i), 1+2*i, 64),
				bulkOut(uint8(0x02+2*i), 2+2*i, 64),
			},
		})
	}
	return dev
}

func cdcDevice(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x2341,
		ProductID: 0x0043,
		Class:     ClassComm,
		Interfaces: []*Interface{
			{Number: 0, Class: ClassComm, Endpoints: []*Endpoint{interruptIn(0x82, 2)}},
			{Number: 1, Class: ClassCDCData, Endpoints: []*Endpoint{bulkOut(0x04, 4, 64), bulkIn(0x83, 3, 64)}},
		},
	}
}

func cdcSingleInterfaceDevice(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x2341,
		ProductID: 0x0043,
		Interfaces: []*Interface{
			{Number: 0, Class: ClassComm, Endpoints: []*Endpoint{interruptIn(0x82, 2), bulkOut(0x04, 4, 64), bulkIn(0x83, 3, 64)}},
		},
	}
}

func stm32Device(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x0483,
		ProductID: 0x5740,
		Interfaces: []*Interface{
			{Number: 0, Class: 0xff},
			{Number: 2, Class: ClassComm, Endpoints: []*Endpoint{interruptIn(0x82, 2)}},
			{Number: 3, Class: ClassCDCData, Endpoints: []*Endpoint{bulkOut(0x01, 1, 64), bulkIn(0x81, 1, 64)}},
		},
	}
}

func prolificDevice(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x067b,
		ProductID: 0x2303,
		Interfaces: []*Interface{{
			Number: 0,
			Class:  0xff,
			Endpoints: []*Endpoint{
				interruptIn(0x81, 1),
				bulkOut(0x02, 2, 64),
				bulkIn(0x83, 3, 64),
			},
		}},
	}
}

// prolificDescriptor builds a device descriptor with the fields the
// type detection reads.
func prolificDescriptor(usbVersion, deviceVersion uint16, maxPacket0 byte) []byte {
	d := make([]byte, 18)
	d[0], d[1] = 18, 1
	d[2], d[3] = byte(usbVersion), byte(usbVersion>>8)
	d[7] = maxPacket0
	d[12], d[13] = byte(deviceVersion), byte(deviceVersion>>8)
	return d
}

func cp21xxDevice(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x10c4,
		ProductID: 0xea60,
		Interfaces: []*Interface{{
			Number:    0,
			Class:     0xff,
			Endpoints: []*Endpoint{bulkIn(0x81, 1, 64), bulkOut(0x01, 1, 64)},
		}},
	}
}

func ch34xDevice(id int) *Device {
	return &Device{
		ID:        id,
		VendorID:  0x1a86,
		ProductID: 0x7523,
		Interfaces: []*Interface{{
			Number:    0,
			Class:     0xff,
			Endpoints: []*Endpoint{interruptIn(0x81, 1), bulkOut(0x02, 2, 32), bulkIn(0x82, 2, 32)},
		}},
	}
}

// ch34xHandshake answers the CH34x status reads with the values the
// initialization expects.
func ch34xHandshake(c controlCall, buf []byte) (int, bool, error) {
	if !c.in() {
		return 0, false, nil
	}
	clear(buf)
	if c.Request == 0x95 && c.Value == 0x0706 && len(buf) > 1 {
		buf[1] = 0xee
	}
	return len(buf), true, nil
}

func openedPort(t *testing.T, dt *DriverType, tr *fakeTransport, opts ...Option) Port {
	t.Helper()
	d, err := dt.New(tr, tr.devices[0], nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	cfg, err := NewConfig(opts...)
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	p := d.Ports()[0]
	if err := p.Open(cfg); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return p
}
