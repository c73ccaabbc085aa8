/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	usbserial "github.com/allbin/go-usbserial"
	"github.com/allbin/go-usbserial/usbhost"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usbserial",
	Short: "Talk to USB serial adapters directly over libusb",
	Long: `usbserial drives FTDI, Prolific, CP21xx, CH34x, CDC-ACM and STM32
virtual COM port adapters from user space, without the kernel tty drivers.

Ports are named "<device>/<port>" where device is bus*1000+address and port
is the channel index on that device, e.g. 1002/0. Run 'usbserial list' to see
what is attached.

Serial settings can be given as flags, in $HOME/.usbserial.yaml or through
USBSERIAL_* environment variables (e.g. USBSERIAL_BAUD=9600).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.usbserial.yaml)")
	rootCmd.PersistentFlags().IntP("baud", "b", usbserial.DefaultBaudRate, "Baud rate")
	rootCmd.PersistentFlags().Int("data-bits", usbserial.DefaultDataBits, "Data bits: 5, 6, 7 or 8")
	rootCmd.PersistentFlags().String("stop-bits", "1", "Stop bits: 1, 1.5 or 2")
	rootCmd.PersistentFlags().String("parity", "none", "Parity: none, odd, even, mark, space")
	rootCmd.PersistentFlags().StringP("flow-control", "f", "none", "Flow control: none, rtscts, dsrdtr, xonxoff")
	rootCmd.PersistentFlags().Duration("read-timeout", usbserial.DefaultTimeout, "Timeout of a single read")
	rootCmd.PersistentFlags().Duration("write-timeout", usbserial.DefaultTimeout, "Timeout of a single write")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log USB traffic to stderr")

	for _, name := range []string{"baud", "data-bits", "stop-bits", "parity", "flow-control", "read-timeout", "write-timeout", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".usbserial")
	}

	viper.SetEnvPrefix("usbserial")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func newLogger() *zap.SugaredLogger {
	if !viper.GetBool("verbose") {
		return zap.NewNop().Sugar()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log.Sugar()
}

// portOptions turns the serial settings into open options.
func portOptions() ([]usbserial.Option, error) {
	stopBits, err := usbserial.ParseStopBits(viper.GetString("stop-bits"))
	if err != nil {
		return nil, err
	}
	parity, err := usbserial.ParseParity(viper.GetString("parity"))
	if err != nil {
		return nil, err
	}
	flow, err := parseFlowControl(viper.GetString("flow-control"))
	if err != nil {
		return nil, err
	}
	return []usbserial.Option{
		usbserial.WithBaudRate(viper.GetInt("baud")),
		usbserial.WithDataBits(viper.GetInt("data-bits")),
		usbserial.WithStopBits(stopBits),
		usbserial.WithParity(parity),
		usbserial.WithFlowControl(flow),
		usbserial.WithReadTimeout(viper.GetDuration("read-timeout")),
		usbserial.WithWriteTimeout(viper.GetDuration("write-timeout")),
	}, nil
}

func parseFlowControl(s string) (usbserial.FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return usbserial.FlowControlNone, nil
	case "rtscts", "rts/cts":
		return usbserial.FlowControlRTSCTS, nil
	case "dsrdtr", "dsr/dtr":
		return usbserial.FlowControlDSRDTR, nil
	case "xonxoff", "xon/xoff":
		return usbserial.FlowControlXonXoff, nil
	}
	return usbserial.FlowControlNone, fmt.Errorf("%w: flow control %q", usbserial.ErrInvalidParameter, s)
}

// session owns the libusb context and the provider scanned from it.
type session struct {
	log       *zap.SugaredLogger
	transport *usbhost.Transport
	provider  *usbserial.Provider
}

func newSession() *session {
	log := newLogger()
	t := usbhost.New(log)
	return &session{
		log:       log,
		transport: t,
		provider:  usbserial.NewProvider(t, nil, log),
	}
}

// Close closes every driver and then the libusb context.
func (s *session) Close() error {
	err := multierr.Combine(s.provider.Close(), s.transport.Close())
	_ = s.log.Sync()
	return err
}

// open looks up the named port and opens it with the configured settings.
func (s *session) open(name string, extra ...usbserial.Option) (*usbserial.SerialPort, error) {
	opts, err := portOptions()
	if err != nil {
		return nil, err
	}
	if _, err := s.provider.PortNames(); err != nil {
		return nil, fmt.Errorf("failed to scan devices: %w", err)
	}
	port, err := s.provider.SerialPort(name)
	if err != nil {
		return nil, err
	}
	if err := port.Open(append(opts, extra...)...); err != nil {
		return nil, err
	}
	return port, nil
}

// openPort is the common prologue of the per-port commands. It exits the
// process on failure.
func openPort(name string, extra ...usbserial.Option) (*session, *usbserial.SerialPort) {
	s := newSession()
	port, err := s.open(name, extra...)
	if err != nil {
		_ = s.Close()
		fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
		os.Exit(1)
	}
	return s, port
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
