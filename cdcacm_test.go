package usbserial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineCoding(t *testing.T) {
	msg, err := lineCoding(115200, 8, StopBitsOne, ParityNone)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xC2, 0x01, 0x00, 0x00, 0x00, 0x08}, msg)

	msg, err = lineCoding(9600, 7, StopBitsTwo, ParityEven)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x25, 0x00, 0x00, 0x02, 0x02, 0x07}, msg)

	_, err = lineCoding(9600, 9, StopBitsOne, ParityNone)
	assert.ErrorIs(t, err, ErrUnsupportedParameter)
	_, err = lineCoding(9600, 8, StopBits(5), ParityNone)
	assert.ErrorIs(t, err, ErrUnsupportedParameter)
}

func TestControlLineState(t *testing.T) {
	assert.Equal(t, uint16(0), controlLineState(false, false))
	assert.Equal(t, uint16(1), controlLineState(true, false))
	assert.Equal(t, uint16(2), controlLineState(false, true))
	assert.Equal(t, uint16(3), controlLineState(true, true))
}

func TestCdcAcmOpen(t *testing.T) {
	tr := newFakeTransport(cdcDevice(1001))
	openedPort(t, CdcAcmDriver, tr)

	assert.Equal(t, map[int]int{0: 1, 1: 1}, tr.conn.claimed)
	calls := tr.conn.controlLog()
	require.Len(t, calls, 1)
	assert.Equal(t, controlCall{
		RequestType: acmRequestType,
		Request:     acmSetLineCoding,
		Data:        []byte{0x00, 0xC2, 0x01, 0x00, 0x00, 0x00, 0x08},
		Length:      7,
	}, calls[0])
}

func TestCdcAcmSingleInterface(t *testing.T) {
	tr := newFakeTransport(cdcSingleInterfaceDevice(1001))
	p := openedPort(t, CdcAcmDriver, tr)

	tr.conn.setBulkIn(0x83, func(buf []byte, _ time.Duration) (int, error) {
		return copy(buf, "ok"), nil
	})
	buf := make([]byte, 8)
	n, err := p.Read(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf[:n]))

	_, err = p.Write([]byte("ping"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("ping")}, tr.conn.writeLog())
}

func TestCdcAcmMissingEndpoints(t *testing.T) {
	dev := cdcSingleInterfaceDevice(1001)
	dev.Interfaces[0].Endpoints = dev.Interfaces[0].Endpoints[:2]
	tr := newFakeTransport(dev)
	d, err := CdcAcmDriver.New(tr, dev, nil)
	require.NoError(t, err)

	p := d.Ports()[0]
	assert.ErrorIs(t, p.Open(DefaultConfig()), ErrNoEndpoint)
	assert.False(t, p.IsOpen())
	assert.Equal(t, 1, tr.conn.closed)
}

func TestCdcAcmNoInterfaces(t *testing.T) {
	dev := &Device{ID: 1001, VendorID: 0x2341, ProductID: 0x0043}
	tr := newFakeTransport(dev)
	d, err := CdcAcmDriver.New(tr, dev, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Ports()[0].Open(DefaultConfig()), ErrNoInterface)
}

func TestCdcAcmControlLines(t *testing.T) {
	tr := newFakeTransport(cdcDevice(1001))
	p := openedPort(t, CdcAcmDriver, tr)
	tr.conn.reset()

	require.NoError(t, p.SetDTR(true))
	require.NoError(t, p.SetRTS(true))
	require.NoError(t, p.SetDTR(false))
	require.NoError(t, p.(BreakSetter).SetBreak(true))
	require.NoError(t, p.(BreakSetter).SetBreak(false))

	calls := tr.conn.controlLog()
	require.Len(t, calls, 5)
	for i, want := range []uint16{1, 3, 2} {
		assert.Equal(t, uint8(acmSetControlLineState), calls[i].Request)
		assert.Equal(t, want, calls[i].Value)
	}
	assert.Equal(t, uint8(acmSendBreak), calls[3].Request)
	assert.Equal(t, uint16(0xffff), calls[3].Value)
	assert.Equal(t, uint16(0), calls[4].Value)

	rts, err := p.GetRTS()
	require.NoError(t, err)
	assert.True(t, rts)
	cts, err := p.GetCTS()
	require.NoError(t, err)
	assert.False(t, cts)
}

func TestCdcAcmSetParameters(t *testing.T) {
	tr := newFakeTransport(cdcDevice(1001))
	p := openedPort(t, CdcAcmDriver, tr)
	tr.conn.reset()

	require.NoError(t, p.SetParameters(9600, 7, StopBitsOnePointFive, ParityMark))
	calls := tr.conn.controlLog()
	require.Len(t, calls, 1)
	assert.Equal(t, []byte{0x80, 0x25, 0x00, 0x00, 0x01, 0x03, 0x07}, calls[0].Data)
}

func TestStm32Open(t *testing.T) {
	tr := newFakeTransport(stm32Device(1001))
	p := openedPort(t, Stm32Driver, tr)

	assert.Equal(t, map[int]int{2: 1, 3: 1}, tr.conn.claimed)
	calls := tr.conn.controlLog()
	require.Len(t, calls, 1)
	assert.Equal(t, uint8(acmSetLineCoding), calls[0].Request)
	assert.Equal(t, uint16(2), calls[0].Index)

	tr.conn.reset()
	require.NoError(t, p.SetDTR(true))
	require.NoError(t, p.(BreakSetter).SetBreak(true))
	calls = tr.conn.controlLog()
	require.Len(t, calls, 2)
	assert.Equal(t, uint16(1), calls[0].Value)
	assert.Equal(t, uint16(2), calls[0].Index)
	assert.Equal(t, uint16(2), calls[1].Index)
}

func TestStm32MissingDataInterface(t *testing.T) {
	dev := stm32Device(1001)
	dev.Interfaces = dev.Interfaces[:2]
	tr := newFakeTransport(dev)
	d, err := Stm32Driver.New(tr, dev, nil)
	require.NoError(t, err)

	p := d.Ports()[0]
	assert.ErrorIs(t, p.Open(DefaultConfig()), ErrNoInterface)
	assert.Equal(t, []int{2}, tr.conn.released)
}
