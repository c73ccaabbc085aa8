/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

// rtsCmd represents the rts command
var rtsCmd = &cobra.Command{
	Use:   "rts <port> <state>",
	Short: "Control RTS (Request To Send) signal",
	Long: `Manually set the RTS (Request To Send) signal state.

The RTS signal can be used for hardware flow control or custom signaling.

Examples:
  usbserial rts 1002/0 high
  usbserial rts 1002/0 low

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSetLine("RTS", args[0], args[1], lineRTS)
	},
}

type outputLine struct {
	set func(usbserial.Port, bool) error
	get func(usbserial.Port) (bool, error)
}

var (
	lineDTR = outputLine{set: usbserial.Port.SetDTR, get: usbserial.Port.GetDTR}
	lineRTS = outputLine{set: usbserial.Port.SetRTS, get: usbserial.Port.GetRTS}
)

func runSetLine(label, name, stateArg string, line outputLine) {
	state, err := parseSignalState(stateArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s, port := openPort(name)
	defer s.Close()

	if err := line.set(port.Port(), state); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting %s: %v\n", label, err)
		os.Exit(1)
	}

	// Verify the state was set
	current, err := line.get(port.Port())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not verify %s state: %v\n", label, err)
	}

	fmt.Printf("%s set to %s on %s\n", label, formatSignalState(current), name)
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

func init() {
	rootCmd.AddCommand(rtsCmd)
}
