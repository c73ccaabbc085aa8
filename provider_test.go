package usbserial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) (*Provider, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport(
		cdcDevice(3005),
		&Device{ID: 3006, VendorID: 0x1234, ProductID: 0x5678},
		ftdiDevice(1002, 2),
	)
	p := NewProvider(tr, nil, nil)
	t.Cleanup(func() { _ = p.Close() })
	return p, tr
}

func TestProviderPortNames(t *testing.T) {
	p, tr := newTestProvider(t)

	names, err := p.PortNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"1002/0", "1002/1", "3005/0"}, names)

	names[0] = "changed"
	again, err := p.PortNames()
	require.NoError(t, err)
	assert.Equal(t, "1002/0", again[0])
	assert.Equal(t, 1, tr.lists)
}

func TestProviderEmptyScanIsCached(t *testing.T) {
	tr := newFakeTransport()
	tr.listErr = errors.New("libusb not initialized")
	p := NewProvider(tr, nil, nil)

	_, err := p.PortNames()
	require.ErrorIs(t, err, tr.listErr)

	tr.listErr = nil
	for i := 0; i < 2; i++ {
		names, err := p.PortNames()
		require.NoError(t, err)
		assert.Empty(t, names)
	}
	assert.Equal(t, 2, tr.lists)

	tr.devices = append(tr.devices, cdcDevice(1001))
	names, err := p.PortNames()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 2, tr.lists)
}

func TestProviderSerialPort(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.PortNames()
	require.NoError(t, err)

	sp, err := p.SerialPort("1002/1")
	require.NoError(t, err)
	assert.Equal(t, "1002/1", sp.Name())
	assert.Equal(t, 1, sp.Port().PortNumber())

	_, err = p.SerialPort("9999/0")
	assert.ErrorIs(t, err, ErrPortNotFound)
}

func TestProviderPortInfo(t *testing.T) {
	p, _ := newTestProvider(t)

	infos, err := p.Ports()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "1002/1", infos[1].Name)
	assert.Equal(t, "FTDI", infos[1].Driver)
	assert.Equal(t, "FTDI USB Serial Converter", infos[1].Description)
	assert.Equal(t, "0403:6010", infos[1].VIDPID())
	assert.Equal(t, 1, infos[1].PortIndex)
	assert.Equal(t, 2, infos[1].Interfaces)

	assert.Equal(t, "CDC-ACM", infos[2].Driver)
	assert.Equal(t, "USB CDC/ACM Device", infos[2].Description)
}

func TestSerialPortLifecycle(t *testing.T) {
	p, tr := newTestProvider(t)
	_, err := p.PortNames()
	require.NoError(t, err)
	sp, err := p.SerialPort("3005/0")
	require.NoError(t, err)

	_, err = sp.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = sp.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrPortClosed)

	require.NoError(t, sp.Open(WithBaudRate(9600), WithReadTimeout(5*time.Millisecond)))
	assert.True(t, sp.IsOpen())
	assert.Equal(t, 9600, sp.Config().BaudRate)

	// opening again keeps the first configuration
	require.NoError(t, sp.Open(WithBaudRate(57600)))
	assert.Equal(t, 9600, sp.Config().BaudRate)
	assert.Equal(t, 1, tr.opens)

	n, err := sp.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = sp.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, sp.Close())
	require.NoError(t, sp.Close())
	assert.False(t, sp.IsOpen())
}

func TestSerialPortOpenInvalidOption(t *testing.T) {
	p, tr := newTestProvider(t)
	_, err := p.PortNames()
	require.NoError(t, err)
	sp, err := p.SerialPort("3005/0")
	require.NoError(t, err)

	assert.ErrorIs(t, sp.Open(WithDataBits(9)), ErrInvalidConfig)
	assert.False(t, sp.IsOpen())
	assert.Equal(t, 0, tr.opens)
}

func TestSerialPortReadContext(t *testing.T) {
	p, tr := newTestProvider(t)
	_, err := p.PortNames()
	require.NoError(t, err)
	sp, err := p.SerialPort("3005/0")
	require.NoError(t, err)
	require.NoError(t, sp.Open(WithReadTimeout(5*time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = sp.ReadContext(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	calls := 0
	tr.conn.setBulkIn(0x83, func(buf []byte, _ time.Duration) (int, error) {
		calls++
		if calls < 3 {
			return 0, ErrTimeout
		}
		return copy(buf, "data"), nil
	})
	buf := make([]byte, 8)
	n, err := sp.ReadContext(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))
	assert.Equal(t, 3, calls)
}

func TestProviderClose(t *testing.T) {
	p, tr := newTestProvider(t)
	_, err := p.PortNames()
	require.NoError(t, err)

	sp, err := p.SerialPort("1002/0")
	require.NoError(t, err)
	require.NoError(t, sp.Open())

	require.NoError(t, p.Close())
	assert.False(t, sp.IsOpen())
	assert.Equal(t, 1, tr.conn.closed)
}
