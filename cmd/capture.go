/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> <output-file>",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Reads raw bytes from the specified port and writes them directly to the
output file. Runs until interrupted (Ctrl+C) or until --duration elapses.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  usbserial capture 1002/0 data.log
  usbserial capture 1002/0 output.txt --baud 9600
  usbserial capture 1002/0 capture.log --console --duration 1m`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		bufferSize, _ := cmd.Flags().GetInt("buffer")
		showConsole, _ := cmd.Flags().GetBool("console")
		duration, _ := cmd.Flags().GetDuration("duration")

		if err := runCapture(args[0], args[1], bufferSize, showConsole, duration); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().Int("buffer", 4096, "Read buffer size")
	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
	captureCmd.Flags().DurationP("duration", "d", 0, "Stop after this long (0 = until interrupted)")
}

func runCapture(name, outputPath string, bufferSize int, showConsole bool, duration time.Duration) error {
	s := newSession()
	defer s.Close()

	port, err := s.open(name, usbserial.WithReadBufferSize(bufferSize))
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}

	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", name, outputPath)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	buffer := make([]byte, bufferSize)
	bytesWritten := int64(0)
	startTime := time.Now()

	for {
		n, err := port.ReadContext(ctx, buffer)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v\n", bytesWritten, time.Since(startTime).Round(time.Millisecond))
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		written, err := file.Write(buffer[:n])
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		bytesWritten += int64(written)

		if showConsole {
			os.Stdout.Write(buffer[:n])
		}
	}
}
