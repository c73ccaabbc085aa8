/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <device|port>",
	Short: "Reset a USB serial device",
	Long: `Perform a USB-level reset on a serial device. This can recover devices
that are hung or unresponsive without physically unplugging them.

The device re-enumerates after the reset and usually comes back under a new
address, so its port names change.

Requirements:
- Write access to the USB device node (root or a udev rule)

Examples:
  sudo usbserial reset 1002      # Reset by device id
  sudo usbserial reset 1002/0    # Reset the device behind a port`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseDeviceID(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s := newSession()
		defer s.Close()

		dev, err := s.transport.FindDevice(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Resetting USB device: %s\n", dev)
		if err := s.transport.ResetDevice(dev); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("USB device reset successfully")
		fmt.Println("Device will re-enumerate (port names may change)")
		fmt.Println("\nUse 'usbserial list --table' to see updated device list")
	},
}

// parseDeviceID accepts "1002" or a port name like "1002/0".
func parseDeviceID(s string) (int, error) {
	dev, _, _ := strings.Cut(s, "/")
	id, err := strconv.Atoi(dev)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid device id: %s", s)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
