package usbhost

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usbserial "github.com/allbin/go-usbserial"
)

func TestConvertDevice(t *testing.T) {
	desc := &gousb.DeviceDesc{
		Bus:     3,
		Address: 7,
		Vendor:  gousb.ID(0x0403),
		Product: gousb.ID(0x6010),
		Class:   gousb.ClassPerInterface,
		Configs: map[int]gousb.ConfigDesc{
			2: {
				Number: 2,
				Interfaces: []gousb.InterfaceDesc{{
					Number:      0,
					AltSettings: []gousb.InterfaceSetting{{Number: 0, Class: gousb.ClassComm}},
				}},
			},
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{
						Number: 0,
						AltSettings: []gousb.InterfaceSetting{{
							Number: 0,
							Class:  gousb.ClassVendorSpec,
							Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
								0x81: {Address: 0x81, Number: 1, Direction: gousb.EndpointDirectionIn, MaxPacketSize: 512, TransferType: gousb.TransferTypeBulk},
								0x02: {Address: 0x02, Number: 2, Direction: gousb.EndpointDirectionOut, MaxPacketSize: 512, TransferType: gousb.TransferTypeBulk},
							},
						}},
					},
					{Number: 1},
				},
			},
		},
	}

	dev := convertDevice(desc, 0)
	assert.Equal(t, 3007, dev.ID)
	assert.Equal(t, uint16(0x0403), dev.VendorID)
	assert.Equal(t, uint16(0x6010), dev.ProductID)
	assert.Equal(t, "bus 003 device 007", dev.Name)
	require.Equal(t, 2, dev.InterfaceCount())

	intf := dev.Interface(0)
	assert.Equal(t, uint8(0xff), intf.Class)
	require.Len(t, intf.Endpoints, 2)
	assert.Equal(t, &usbserial.Endpoint{Address: 0x02, Number: 2, Direction: usbserial.DirectionOut, Type: usbserial.TransferBulk, MaxPacketSize: 512}, intf.Endpoints[0])
	assert.Equal(t, &usbserial.Endpoint{Address: 0x81, Number: 1, Direction: usbserial.DirectionIn, Type: usbserial.TransferBulk, MaxPacketSize: 512}, intf.Endpoints[1])

	// no alternate settings: position and number kept, nothing else
	assert.Equal(t, &usbserial.Interface{Number: 1}, dev.Interface(1))

	active := convertDevice(desc, 2)
	require.Equal(t, 1, active.InterfaceCount())
	assert.Equal(t, uint8(gousb.ClassComm), active.Interface(0).Class)

	// unknown active configuration falls back to configuration 1
	assert.Equal(t, 2, convertDevice(desc, 5).InterfaceCount())
}

func TestSelectConfigFallsBackToLowest(t *testing.T) {
	desc := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
		4: {Number: 4},
		3: {Number: 3},
	}}
	cfg, ok := selectConfig(desc, 0)
	require.True(t, ok)
	assert.Equal(t, 3, cfg.Number)

	cfg, ok = selectConfig(desc, 4)
	require.True(t, ok)
	assert.Equal(t, 4, cfg.Number)

	_, ok = selectConfig(&gousb.DeviceDesc{}, 1)
	assert.False(t, ok)
}

func TestRecordActiveConfig(t *testing.T) {
	desc := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
		1: {Number: 1},
		2: {Number: 2},
	}}
	tr := &Transport{active: make(map[int]int)}

	assert.Equal(t, 0, tr.activeConfig(1002))
	assert.Equal(t, 1, tr.recordActiveConfig(1002, desc, 2))
	assert.Equal(t, 2, tr.activeConfig(1002))
	assert.Equal(t, 2, tr.recordActiveConfig(1002, desc, 2))
}

func TestConvertEndpointTypes(t *testing.T) {
	tests := []struct {
		in       gousb.TransferType
		expected usbserial.TransferType
	}{
		{gousb.TransferTypeControl, usbserial.TransferControl},
		{gousb.TransferTypeIsochronous, usbserial.TransferIsochronous},
		{gousb.TransferTypeBulk, usbserial.TransferBulk},
		{gousb.TransferTypeInterrupt, usbserial.TransferInterrupt},
	}
	for _, tt := range tests {
		ep := convertEndpoint(gousb.EndpointDesc{TransferType: tt.in})
		assert.Equal(t, tt.expected, ep.Type)
	}
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(gousb.TransferTimedOut), usbserial.ErrTimeout)
	assert.ErrorIs(t, mapError(gousb.TransferCancelled), usbserial.ErrTimeout)
	assert.ErrorIs(t, mapError(gousb.ErrorTimeout), usbserial.ErrTimeout)
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), usbserial.ErrTimeout)

	stall := gousb.TransferStall
	err := mapError(stall)
	assert.ErrorIs(t, err, stall)
	assert.False(t, errors.Is(err, usbserial.ErrTimeout))
}

func TestDeviceID(t *testing.T) {
	assert.Equal(t, 1002, DeviceID(1, 2))
	assert.Equal(t, 12127, DeviceID(12, 127))
}
