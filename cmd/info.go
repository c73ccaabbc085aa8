/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display the USB identity, driver and endpoint layout behind a port.

Examples:
  usbserial info 1002/0
  usbserial info 3005/1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		s := newSession()
		defer s.Close()

		if _, err := s.provider.PortNames(); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning devices: %v\n", err)
			os.Exit(1)
		}
		info, err := s.provider.PortInfo(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting port info: %v\n", err)
			os.Exit(1)
		}
		sp, err := s.provider.SerialPort(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting port: %v\n", err)
			os.Exit(1)
		}
		dev := sp.Port().Driver().Device()

		fmt.Printf("Port Information: %s\n\n", info.Name)
		fmt.Printf("  Driver:      %s\n", info.Driver)
		fmt.Printf("  Description: %s\n", info.Description)
		fmt.Printf("  Port index:  %d\n", info.PortIndex)

		fmt.Println("\nUSB Device Information:")
		fmt.Printf("  Vendor ID:   %04x\n", info.VendorID)
		fmt.Printf("  Product ID:  %04x\n", info.ProductID)
		fmt.Printf("  Device ID:   %d\n", info.DeviceID)
		fmt.Printf("  Location:    %s\n", info.DeviceName)
		fmt.Printf("  Interfaces:  %d\n", info.Interfaces)

		for i := 0; i < dev.InterfaceCount(); i++ {
			intf := dev.Interface(i)
			fmt.Printf("\n  Interface %d (class 0x%02x, subclass 0x%02x, protocol 0x%02x)\n",
				intf.Number, intf.Class, intf.SubClass, intf.Protocol)
			for _, ep := range intf.Endpoints {
				fmt.Printf("    %s\n", ep)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
