package usbhost

import (
	"fmt"
	"time"

	usbserial "github.com/allbin/go-usbserial"
)

// ResetSettle is how long ResetDevice waits for the device to
// re-enumerate. USB devices typically take 1-2 seconds to come back.
var ResetSettle = 2 * time.Second

// ResetDevice performs a USB-level reset of dev. This can recover hardware
// that is in a hung/unresponsive state. Any driver bound to dev must be
// closed first; the device comes back under a new address, so names
// handed out by a Provider are stale afterwards.
//
// Requires write access to the device node (typically root or a udev rule).
func (t *Transport) ResetDevice(dev *usbserial.Device) error {
	d, err := t.openDevice(dev)
	if err != nil {
		return err
	}
	defer d.Close()

	t.log.Infow("resetting device", "device", dev.String())
	if err := d.Reset(); err != nil {
		return fmt.Errorf("usb reset of %s failed: %w", dev, err)
	}

	if ResetSettle > 0 {
		time.Sleep(ResetSettle)
	}
	return nil
}

// FindDevice returns the enumerated device with the given ID.
func (t *Transport) FindDevice(id int) (*usbserial.Device, error) {
	devs, err := t.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrDeviceGone, id)
}
