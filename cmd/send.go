/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	usbserial "github.com/allbin/go-usbserial"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port.

Data can be provided as:
- Command line argument: send "Hello World" 1002/0
- From stdin (pipe): echo "test data" | usbserial send 1002/0
- Interactive mode: usbserial send 1002/0 (prompts for input)

Text is converted with --encoding (any WHATWG label such as utf-8,
iso-8859-1 or windows-1252) before it is written. With --hex the data is
taken as hexadecimal bytes and written unchanged.

Example usage:
  usbserial send "Hello World" 1002/0
  usbserial send "AT+GMR" 1002/0 --newline --reply 500ms
  usbserial send "48 65 6c 6c 6f" 1002/0 --hex
  echo "test" | usbserial send 1002/0`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		var data string
		var name string

		// Parse arguments: either "send data port" or "send port"
		if len(args) == 1 {
			name = args[0]
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error reading from stdin: %v\n", err)
					os.Exit(1)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		} else {
			data = args[0]
			name = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		lineEnding, _ := cmd.Flags().GetString("line-ending")
		hexMode, _ := cmd.Flags().GetBool("hex")
		encodingName, _ := cmd.Flags().GetString("encoding")
		reply, _ := cmd.Flags().GetDuration("reply")

		var payload []byte
		if hexMode {
			b, err := parseHexString(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid hex data: %v\n", err)
				os.Exit(1)
			}
			payload = b
		} else {
			enc, err := usbserial.LookupEncoding(encodingName)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if addNewline {
				data += unescapeLineEnding(lineEnding)
			}
			// Encoding only, the port is opened later.
			payload, err = usbserial.NewTextPort(nil, enc, "").Encode(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := sendData(name, payload, reply); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Append the line ending to the data")
	sendCmd.Flags().String("line-ending", `\r\n`, `Line ending used by --newline (escapes \r and \n are understood)`)
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().StringP("encoding", "e", "utf-8", "Text encoding of the data")
	sendCmd.Flags().Duration("reply", 0, "Print whatever arrives within this long after sending")
}

func promptForData() string {
	promptStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99"))

	fmt.Print(promptStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func unescapeLineEnding(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n").Replace(s)
}

func parseHexString(hexStr string) ([]byte, error) {
	// Remove common hex prefixes and whitespace
	hexStr = strings.Join(strings.Fields(hexStr), "")
	hexStr = strings.ReplaceAll(hexStr, "0x", "")
	hexStr = strings.ReplaceAll(hexStr, "0X", "")

	if len(hexStr)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	return hex.DecodeString(hexStr)
}

func sendData(name string, data []byte, reply time.Duration) error {
	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("40")).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	fmt.Printf("%s Opening %s...\n", infoStyle.Render("⚡"), name)

	s := newSession()
	defer s.Close()

	port, err := s.open(name)
	if err != nil {
		return fmt.Errorf("%s %v", errorStyle.Render("✗"), err)
	}

	fmt.Printf("%s Connected successfully\n", successStyle.Render("✓"))
	fmt.Printf("%s Sending %d bytes...\n", infoStyle.Render("📤"), len(data))

	n, err := port.Write(data)
	if err != nil {
		return fmt.Errorf("%s failed to send data: %v", errorStyle.Render("✗"), err)
	}
	fmt.Printf("%s Successfully sent %d bytes\n", successStyle.Render("✓"), n)
	fmt.Printf("%s Data: %s\n", infoStyle.Render("📋"), usbserial.HexDump(data))

	if reply <= 0 {
		return nil
	}

	var received []byte
	buf := make([]byte, 4096)
	deadline := time.Now().Add(reply)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			return fmt.Errorf("%s failed to read reply: %v", errorStyle.Render("✗"), err)
		}
		received = append(received, buf[:n]...)
	}

	if len(received) == 0 {
		fmt.Printf("%s No reply within %v\n", infoStyle.Render("📥"), reply)
		return nil
	}
	fmt.Printf("%s Received %d bytes:\n%s", infoStyle.Render("📥"), len(received), usbserial.HexDumpLines(received))
	return nil
}
