package usbserial

import (
	"fmt"
	"strings"
)

// PortInfo describes a port found by a Provider.
type PortInfo struct {
	Name        string
	Driver      string
	Description string
	DeviceID    int
	DeviceName  string
	VendorID    uint16
	ProductID   uint16
	PortIndex   int
	Interfaces  int
}

// VIDPID formats the identity as "vvvv:pppp".
func (i PortInfo) VIDPID() string {
	return fmt.Sprintf("%04x:%04x", i.VendorID, i.ProductID)
}

// Ports returns information about every port, in name order.
func (p *Provider) Ports() ([]PortInfo, error) {
	names, err := p.PortNames()
	if err != nil {
		return nil, err
	}

	infos := make([]PortInfo, 0, len(names))
	for _, name := range names {
		info, err := p.PortInfo(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// PortInfo returns information about the named port.
func (p *Provider) PortInfo(name string) (*PortInfo, error) {
	sp, err := p.SerialPort(name)
	if err != nil {
		return nil, err
	}

	port := sp.Port()
	dev := port.Driver().Device()
	dt, _ := p.prober.table.FindDriver(dev.VendorID, dev.ProductID)

	info := &PortInfo{
		Name:       name,
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		VendorID:   dev.VendorID,
		ProductID:  dev.ProductID,
		PortIndex:  port.PortNumber(),
		Interfaces: dev.InterfaceCount(),
	}
	if dt != nil {
		info.Driver = dt.Name
	}
	info.Description = portDescription(info.Driver)
	return info, nil
}

// portDescription provides human-readable descriptions for the driver families
func portDescription(driver string) string {
	switch strings.ToUpper(driver) {
	case "FTDI":
		return "FTDI USB Serial Converter"
	case "PROLIFIC":
		return "Prolific PL2303 USB Serial"
	case "CP21XX":
		return "Silicon Labs CP210x USB Serial"
	case "CH34X":
		return "WCH CH34x USB Serial"
	case "CDC-ACM":
		return "USB CDC/ACM Device"
	case "STM32":
		return "STM32 Virtual COM Port"
	default:
		return "USB Serial Port"
	}
}
