// Package usbserial drives USB serial adapters from user space, talking to
// the chips directly with USB control and bulk transfers instead of going
// through the kernel tty drivers.
//
// Supported families are FTDI (single and multi port), Prolific PL2303
// (legacy, HX and HXN), Silicon Labs CP210x, WCH CH340/CH341, generic
// CDC-ACM devices and the STM32 virtual COM port.
//
// # Basic Usage
//
// A Provider scans a Transport for known devices and names their ports
// "{deviceId}/{portIndex}". The usbhost package provides a libusb backed
// Transport:
//
//	t := usbhost.New(log)
//	defer t.Close()
//
//	provider := usbserial.NewProvider(t, nil, log)
//	defer provider.Close()
//
//	names, err := provider.PortNames()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	port, err := provider.SerialPort(names[0])
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := port.Open(usbserial.WithBaudRate(9600)); err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	n, err := port.Write([]byte("Hello"))
//	buffer := make([]byte, 256)
//	n, err = port.Read(buffer)
//
// A read that times out returns 0 bytes and no error. ReadContext keeps
// reading until data arrives or the context is done.
//
// # Drivers and Probing
//
// A ProbeTable maps vendor and product IDs to a DriverType. The default
// table holds every built-in driver; custom products are added with
// AddProduct:
//
//	table := usbserial.DefaultProbeTable().
//	    AddProduct(0x1234, 0x0001, usbserial.CdcAcmDriver)
//	provider := usbserial.NewProvider(t, usbserial.NewProber(table, log), log)
//
// The first driver registered for an ID wins.
//
// # Modem Lines
//
//	signals, err := usbserial.GetModemSignals(port.Port())
//	err = port.Port().SetDTR(true)
//
// Chips without line status reporting (CDC-ACM, STM32, CH34x) report the
// input lines as false.
//
// # Error Handling
//
// Failures wrap sentinel errors such as ErrTimeout, ErrUnsupportedParameter
// and ErrVerification. Failed USB transfers are reported as *TransferError,
// which carries the operation and the transport error:
//
//	var te *usbserial.TransferError
//	if errors.As(err, &te) {
//	    log.Printf("%s failed with %d", te.Op, te.Result)
//	}
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - FlowControl: None
//   - ReadTimeout / WriteTimeout: 1 second
//   - Read / write buffers: 16 KiB
package usbserial
