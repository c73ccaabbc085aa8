package usbserial

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Identity is the vendor and product ID pair of a device.
type Identity struct {
	VendorID  uint16
	ProductID uint16
}

func (i Identity) String() string {
	return fmt.Sprintf("%04x:%04x", i.VendorID, i.ProductID)
}

// ProbeTable maps device identities to driver types. Registration is
// append only and the first registration of an identity wins.
type ProbeTable struct {
	mu      sync.RWMutex
	drivers map[Identity]*DriverType
}

// NewProbeTable returns an empty table.
func NewProbeTable() *ProbeTable {
	return &ProbeTable{drivers: make(map[Identity]*DriverType)}
}

// AddProduct registers dt for one identity. Registering an identity that
// is already present is a no-op.
func (t *ProbeTable) AddProduct(vendorID, productID uint16, dt *DriverType) *ProbeTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := Identity{vendorID, productID}
	if _, ok := t.drivers[id]; !ok {
		t.drivers[id] = dt
	}
	return t
}

// AddDriver registers every identity dt declares.
func (t *ProbeTable) AddDriver(dt *DriverType) *ProbeTable {
	for vendorID, products := range dt.SupportedDevices() {
		for _, productID := range products {
			t.AddProduct(vendorID, productID, dt)
		}
	}
	return t
}

// FindDriver returns the driver type registered for the identity.
func (t *ProbeTable) FindDriver(vendorID, productID uint16) (*DriverType, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dt, ok := t.drivers[Identity{vendorID, productID}]
	return dt, ok
}

// Len returns the number of registered identities.
func (t *ProbeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.drivers)
}

var (
	defaultTableOnce sync.Once
	defaultTable     *ProbeTable
)

// DefaultProbeTable returns the table of all built-in drivers. It is
// built once, in a fixed order.
func DefaultProbeTable() *ProbeTable {
	defaultTableOnce.Do(func() {
		defaultTable = NewProbeTable().
			AddDriver(CdcAcmDriver).
			AddDriver(Cp21xxDriver).
			AddDriver(FtdiDriver).
			AddDriver(ProlificDriver).
			AddDriver(Ch34xDriver).
			AddDriver(Stm32Driver)
	})
	return defaultTable
}

// Prober instantiates drivers for devices found on a transport.
type Prober struct {
	table *ProbeTable
	log   *zap.SugaredLogger
}

// NewProber returns a prober over table. A nil logger discards output.
func NewProber(table *ProbeTable, log *zap.SugaredLogger) *Prober {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Prober{table: table, log: log}
}

// DefaultProber probes with DefaultProbeTable.
func DefaultProber(log *zap.SugaredLogger) *Prober {
	return NewProber(DefaultProbeTable(), log)
}

// Scan probes every device of t and returns the drivers of the devices
// that matched. Unknown devices are skipped. Instantiation failures are
// logged as warnings and skipped so one bad device does not hide the
// others; ProbeDevice reports them.
func (p *Prober) Scan(t Transport) ([]Driver, error) {
	devices, err := t.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var drivers []Driver
	for _, dev := range devices {
		d, err := p.ProbeDevice(t, dev)
		if err != nil {
			if errors.Is(err, ErrDriverNotFound) {
				p.log.Debugw("skipping device", "device", dev.String())
			} else {
				p.log.Warnw("failed to probe device", "device", dev.String(), "error", err)
			}
			continue
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

// ProbeDevice builds the driver registered for dev.
func (p *Prober) ProbeDevice(t Transport, dev *Device) (Driver, error) {
	dt, ok := p.table.FindDriver(dev.VendorID, dev.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, dev)
	}
	d, err := dt.New(t, dev, p.log.Named(dt.Name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s for %s: %w", ErrInstantiation, dt.Name, dev, err)
	}
	p.log.Debugw("probed device", "device", dev.String(), "driver", dt.Name)
	return d, nil
}
