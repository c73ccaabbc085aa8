package usbserial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultProbeTable(t *testing.T) {
	table := DefaultProbeTable()
	assert.Same(t, table, DefaultProbeTable())

	tests := []struct {
		vendorID, productID uint16
		driver              *DriverType
	}{
		{0x0403, 0x6001, FtdiDriver},
		{0x0403, 0x6010, FtdiDriver},
		{0x067b, 0x2303, ProlificDriver},
		{0x10c4, 0xea60, Cp21xxDriver},
		{0x1a86, 0x7523, Ch34xDriver},
		{0x2341, 0x0043, CdcAcmDriver},
		{0x16c0, 0x0483, CdcAcmDriver},
		{0x0483, 0x5740, Stm32Driver},
		{0x0483, 0x374b, Stm32Driver},
	}
	for _, tt := range tests {
		dt, ok := table.FindDriver(tt.vendorID, tt.productID)
		require.True(t, ok, "%04x:%04x", tt.vendorID, tt.productID)
		assert.Same(t, tt.driver, dt, "%04x:%04x", tt.vendorID, tt.productID)
	}

	_, ok := table.FindDriver(0x1234, 0x5678)
	assert.False(t, ok)
}

func TestProbeTableFirstRegistrationWins(t *testing.T) {
	table := NewProbeTable().
		AddProduct(0x1111, 0x2222, FtdiDriver).
		AddProduct(0x1111, 0x2222, Cp21xxDriver)

	dt, ok := table.FindDriver(0x1111, 0x2222)
	require.True(t, ok)
	assert.Same(t, FtdiDriver, dt)
	assert.Equal(t, 1, table.Len())
}

func TestProbeDevice(t *testing.T) {
	cdc := cdcDevice(1001)
	unknown := &Device{ID: 1002, VendorID: 0x1234, ProductID: 0x5678}
	tr := newFakeTransport(cdc, unknown)
	prober := DefaultProber(zap.NewNop().Sugar())

	d, err := prober.ProbeDevice(tr, cdc)
	require.NoError(t, err)
	assert.Same(t, cdc, d.Device())
	assert.Len(t, d.Ports(), 1)

	_, err = prober.ProbeDevice(tr, unknown)
	assert.ErrorIs(t, err, ErrDriverNotFound)
}

func TestProbeDeviceInstantiationError(t *testing.T) {
	cause := errors.New("unsupported revision")
	failing := &DriverType{
		Name:             "failing",
		SupportedDevices: func() map[uint16][]uint16 { return map[uint16][]uint16{0x1234: {0x5678}} },
		New: func(Transport, *Device, *zap.SugaredLogger) (Driver, error) {
			return nil, cause
		},
	}
	dev := &Device{ID: 1001, VendorID: 0x1234, ProductID: 0x5678}
	tr := newFakeTransport(dev)
	prober := NewProber(NewProbeTable().AddDriver(failing), nil)

	_, err := prober.ProbeDevice(tr, dev)
	assert.ErrorIs(t, err, ErrInstantiation)
	assert.ErrorIs(t, err, cause)

	drivers, err := prober.Scan(tr)
	require.NoError(t, err)
	assert.Empty(t, drivers)
}

func TestScanSkipsFailingDevice(t *testing.T) {
	failing := &DriverType{
		Name:             "failing",
		SupportedDevices: func() map[uint16][]uint16 { return map[uint16][]uint16{0x1234: {0x5678}} },
		New: func(Transport, *Device, *zap.SugaredLogger) (Driver, error) {
			return nil, errors.New("unsupported revision")
		},
	}
	tr := newFakeTransport(
		cdcDevice(1001),
		&Device{ID: 1002, VendorID: 0x1234, ProductID: 0x5678},
		cp21xxDevice(1003),
	)
	core, logs := observer.New(zap.WarnLevel)
	table := NewProbeTable().AddDriver(failing).AddDriver(CdcAcmDriver).AddDriver(Cp21xxDriver)

	drivers, err := NewProber(table, zap.New(core).Sugar()).Scan(tr)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, 1001, drivers[0].Device().ID)
	assert.Equal(t, 1003, drivers[1].Device().ID)

	warnings := logs.All()
	require.Len(t, warnings, 1)
	var logged error
	for _, f := range warnings[0].Context {
		if f.Key == "error" {
			logged, _ = f.Interface.(error)
		}
	}
	assert.ErrorIs(t, logged, ErrInstantiation)
	assert.Equal(t, "1234:5678 (id 1002)", warnings[0].ContextMap()["device"])
}

func TestScan(t *testing.T) {
	tr := newFakeTransport(
		ftdiDevice(1001, 2),
		&Device{ID: 1002, VendorID: 0x1234, ProductID: 0x5678},
		cp21xxDevice(1003),
	)

	drivers, err := DefaultProber(nil).Scan(tr)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, 1001, drivers[0].Device().ID)
	assert.Equal(t, 1003, drivers[1].Device().ID)
	assert.Equal(t, 0, tr.opens)

	tr.listErr = errors.New("libusb not initialized")
	_, err = DefaultProber(nil).Scan(tr)
	assert.ErrorIs(t, err, tr.listErr)
}
