/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/allbin/go-usbserial/internal/ptybridge"
)

// ptyCmd represents the pty command
var ptyCmd = &cobra.Command{
	Use:   "pty <port>",
	Short: "Expose a port as a pseudo terminal",
	Long: `Open a port and bridge it to a freshly allocated pseudo terminal, so
programs that only understand tty devices (screen, minicom, pyserial, ...)
can use the adapter without a kernel driver.

The serial settings are fixed by the flags of this command; changing the
settings of the pty from the client side has no effect on the adapter.

Examples:
  usbserial pty 1002/0
  usbserial pty 1002/0 --baud 9600 --link /tmp/ttyGPS`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		link, _ := cmd.Flags().GetString("link")

		s, port := openPort(args[0])
		defer s.Close()

		bridge, err := ptybridge.New(port, s.log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating pty: %v\n", err)
			os.Exit(1)
		}
		defer bridge.Close()

		if link != "" {
			if err := bridge.Link(link); err != nil {
				fmt.Fprintf(os.Stderr, "Error linking pty: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s -> %s\n", link, bridge.Path())
		} else {
			fmt.Println(bridge.Path())
		}
		fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := bridge.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		rx, tx := bridge.Stats()
		fmt.Fprintf(os.Stderr, "\nBridge closed: %d bytes in, %d bytes out\n", rx, tx)
	},
}

func init() {
	rootCmd.AddCommand(ptyCmd)

	ptyCmd.Flags().StringP("link", "l", "", "Create a symlink to the pty at this path")
}
