/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

var (
	monitorSignals  []string
	monitorInterval time.Duration
	monitorTimeout  time.Duration
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Monitor modem signal changes",
	Long: `Monitor modem control signal changes in real-time.

The input lines are polled every --interval and a line is printed whenever one
of the watched signals changes. Press Ctrl+C to stop.

Examples:
  usbserial monitor 1002/0
  usbserial monitor 1002/0 --signals cts,dsr
  usbserial monitor 1002/0 --signals dcd --timeout 30s

Available signals: cts, dsr, ri, dcd`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		mask, err := parseSignalMask(monitorSignals)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing signals: %v\n", err)
			os.Exit(1)
		}
		if monitorInterval <= 0 {
			fmt.Fprintf(os.Stderr, "Error: interval must be positive\n")
			os.Exit(1)
		}

		s, port := openPort(name)
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Monitoring signals on %s (signals: %s)\n", name, strings.Join(monitorSignals, ", "))
		fmt.Println("Press Ctrl+C to stop")

		last, err := usbserial.GetModemSignals(port.Port())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading initial signals: %v\n", err)
			os.Exit(1)
		}
		printSignals("Initial state", last, mask)

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		lastChange := time.Now()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopping monitor...")
				return
			case <-ticker.C:
			}

			current, err := usbserial.GetModemSignals(port.Port())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading signals: %v\n", err)
				os.Exit(1)
			}

			changed := diffSignals(last, current) & mask
			if changed != 0 {
				printSignals("Signal change detected", current, changed)
				last = current
				lastChange = time.Now()
				continue
			}
			if monitorTimeout > 0 && time.Since(lastChange) >= monitorTimeout {
				fmt.Printf("[%s] Timeout - no signal changes\n", timestamp())
				lastChange = time.Now()
			}
		}
	},
}

// signalMask selects input lines by bit.
type signalMask uint8

const (
	signalCTS signalMask = 1 << iota
	signalDSR
	signalRI
	signalDCD
)

func parseSignalMask(signalNames []string) (signalMask, error) {
	if len(signalNames) == 0 {
		return signalCTS | signalDSR | signalRI | signalDCD, nil
	}

	var mask signalMask
	for _, name := range signalNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cts":
			mask |= signalCTS
		case "dsr":
			mask |= signalDSR
		case "ri":
			mask |= signalRI
		case "dcd":
			mask |= signalDCD
		default:
			return 0, fmt.Errorf("unknown signal: %s (valid: cts, dsr, ri, dcd)", name)
		}
	}
	return mask, nil
}

func diffSignals(a, b usbserial.ModemSignals) signalMask {
	var m signalMask
	if a.CTS != b.CTS {
		m |= signalCTS
	}
	if a.DSR != b.DSR {
		m |= signalDSR
	}
	if a.RI != b.RI {
		m |= signalRI
	}
	if a.DCD != b.DCD {
		m |= signalDCD
	}
	return m
}

func printSignals(prefix string, signals usbserial.ModemSignals, mask signalMask) {
	fmt.Printf("[%s] %s:\n", timestamp(), prefix)
	if mask&signalCTS != 0 {
		fmt.Printf("  CTS: %s\n", formatSignalState(signals.CTS))
	}
	if mask&signalDSR != 0 {
		fmt.Printf("  DSR: %s\n", formatSignalState(signals.DSR))
	}
	if mask&signalRI != 0 {
		fmt.Printf("  RI:  %s\n", formatSignalState(signals.RI))
	}
	if mask&signalDCD != 0 {
		fmt.Printf("  DCD: %s\n", formatSignalState(signals.DCD))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringSliceVarP(&monitorSignals, "signals", "s", []string{"cts", "dsr", "ri", "dcd"},
		"Signals to monitor (comma-separated: cts,dsr,ri,dcd)")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 100*time.Millisecond,
		"Polling interval")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0,
		"Report when nothing changed for this long (0 = never)")
}
