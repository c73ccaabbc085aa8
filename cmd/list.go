/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available USB serial ports",
	Long: `List every port of every attached USB device that has a driver.

Supported families:
- FTDI (FT232R, FT2232, FT4232H, ...)
- Prolific PL2303
- Silicon Labs CP210x
- WCH CH340/CH341
- CDC-ACM devices (Arduino and friends)
- STM32 virtual COM port

Port names have the form <device>/<port>, e.g. 1002/0.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession()
		defer s.Close()

		ports, err := s.provider.Ports()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		filterDriver, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		filtered := filterPorts(ports, filterDriver)
		if len(filtered) == 0 {
			if filterDriver != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterDriver)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if tableFormat {
			renderTable(filtered)
		} else {
			renderSimple(filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("filter", "", "Filter by driver: ftdi, prolific, cp21xx, ch34x, cdc-acm, stm32")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterPorts keeps the ports bound to the named driver
func filterPorts(ports []usbserial.PortInfo, driver string) []usbserial.PortInfo {
	if driver == "" || driver == "all" {
		return ports
	}

	var filtered []usbserial.PortInfo
	for _, p := range ports {
		if strings.EqualFold(p.Driver, driver) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

const (
	columnKeyPort   = "port"
	columnKeyID     = "id"
	columnKeyDriver = "driver"
	columnKeyDevice = "device"
	columnKeyDesc   = "description"
)

// renderTable renders the port list in a styled static table format
func renderTable(ports []usbserial.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	columns := []table.Column{
		table.NewColumn(columnKeyPort, "Port", 10),
		table.NewColumn(columnKeyID, "VID:PID", 11),
		table.NewColumn(columnKeyDriver, "Driver", 10),
		table.NewColumn(columnKeyDevice, "Device", 20),
		table.NewColumn(columnKeyDesc, "Description", 32),
	}

	rows := make([]table.Row, 0, len(ports))
	for _, p := range ports {
		rows = append(rows, table.NewRow(table.RowData{
			columnKeyPort:   p.Name,
			columnKeyID:     p.VIDPID(),
			columnKeyDriver: p.Driver,
			columnKeyDevice: p.DeviceName,
			columnKeyDesc:   p.Description,
		}))
	}

	t := table.New(columns).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(lipgloss.Color("240")).Align(lipgloss.Left))

	fmt.Println(t.View())
}

// renderSimple renders the port list in simple text format
func renderSimple(ports []usbserial.PortInfo) {
	for _, p := range ports {
		fmt.Printf("%s\t%s\t%s\n", p.Name, p.VIDPID(), p.Driver)
	}
}
