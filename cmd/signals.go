/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display current modem signal states",
	Long: `Display the current state of all modem control signals.

Shows the state of CTS, DSR, RI, DCD, RTS, and DTR signals for the specified port.
CDC-ACM, STM32 and CH34x devices do not report input lines and always show LOW.

Examples:
  usbserial signals 1002/0

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		s, port := openPort(name)
		defer s.Close()

		signals, err := usbserial.GetModemSignals(port.Port())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading modem signals: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Modem Signals for %s:\n\n", name)
		for _, l := range []struct {
			label string
			state bool
		}{
			{"CTS (Clear To Send)", signals.CTS},
			{"DSR (Data Set Ready)", signals.DSR},
			{"RI  (Ring Indicator)", signals.RI},
			{"DCD (Data Carrier Detect)", signals.DCD},
			{"RTS (Request To Send)", signals.RTS},
			{"DTR (Data Terminal Ready)", signals.DTR},
		} {
			fmt.Printf("  %-26s %s\n", l.label+":", formatSignalState(l.state))
		}
	},
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func init() {
	rootCmd.AddCommand(signalsCmd)
}
