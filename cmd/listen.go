/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/allbin/go-usbserial/internal/tui/components"
	"github.com/allbin/go-usbserial/internal/tui/keys"
	"github.com/allbin/go-usbserial/internal/tui/models"
	"github.com/allbin/go-usbserial/internal/tui/styles"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Listen for data on a serial port with real-time display",
	Long: `Listen for incoming data on a serial port with a real-time TUI display.

Features include:
- Real-time data streaming with timestamps
- ASCII and hex display modes
- Live CTS/DSR/DCD/RI indicators
- Pause, clear and scrollback

Example usage:
  usbserial listen 1002/0
  usbserial listen 1002/0 --baud 9600
  usbserial listen 1002/0 --raw`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		showIndicators, _ := cmd.Flags().GetBool("show-indicators")
		rawMode, _ := cmd.Flags().GetBool("raw")
		signalInterval, _ := cmd.Flags().GetDuration("signal-interval")

		mode := components.DisplayMode{
			ShowHex:        true,
			ShowASCII:      true,
			ShowTimestamps: !noTimestamps && !rawMode,
			ShowIndicators: showIndicators && !rawMode,
		}

		if err := runListenTUI(args[0], mode, signalInterval); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
	listenCmd.Flags().Bool("show-indicators", false, "Show RX/TX indicators (off by default)")
	listenCmd.Flags().Bool("raw", false, "Raw output mode: no timestamps, no indicators")
	listenCmd.Flags().Duration("signal-interval", 250*time.Millisecond, "Modem line polling interval (0 = off)")
}

// listenModel represents the Bubble Tea model for the listen command
type listenModel struct {
	*models.SerialModel
	terminal  *components.Terminal
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.TerminalKeys
}

func runListenTUI(name string, mode components.DisplayMode, signalInterval time.Duration) error {
	s := newSession()
	defer s.Close()

	serialModel := models.NewSerialModel(name)
	m := &listenModel{
		SerialModel: serialModel,
		terminal:    components.NewTerminal(80, 20, mode),
		statusBar:   components.NewStatusBar("LISTEN", name),
		help:        help.New(),
		keys:        keys.NewTerminalKeys(),
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Connect to the port in background so the UI comes up immediately
	go func() {
		port, err := s.open(name)
		if err != nil {
			p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
			return
		}
		m.SetPort(port)

		info := &components.ConnectionInfo{Config: port.Config()}
		if pi, err := s.provider.PortInfo(name); err == nil {
			info.Driver = pi.Driver
		}
		p.Send(info)
		p.Send(models.ConnectionStatusMsg{Connected: true})

		if signalInterval > 0 {
			go m.PollSignals(p.Send, signalInterval)
		}
		m.ReadLoop(p.Send)
	}()

	_, err := p.Run()
	m.Cleanup()
	return err
}

func (m *listenModel) Init() tea.Cmd {
	return nil
}

func (m *listenModel) refresh() {
	m.terminal.Refresh(m.GetRawData())
}

func (m *listenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Status bar is single line
		m.terminal.SetSize(msg.Width, msg.Height-1)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)
		return m, m.terminal.Update(msg)

	case tea.MouseMsg:
		return m, m.terminal.Update(msg)

	case *components.ConnectionInfo:
		m.statusBar.SetConnectionInfo(msg)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		if msg.Error != nil {
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
		} else {
			m.statusBar.SetConnected()
		}

	case components.SignalsMsg:
		if msg.Err == nil {
			m.statusBar.SetSignals(msg.Signals)
		}

	case components.DataReceivedMsg:
		m.statusBar.AddTraffic(len(msg.Data), 0)
		m.AddRawData(msg)
		if !m.IsPaused() {
			m.terminal.AddMessage(msg)
		}

	case tea.KeyMsg:
		f := m.terminal.Formatter()
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Cancel()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Clear):
			m.ClearData()
			m.terminal.Clear()

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.Pause):
			if !m.TogglePaused() {
				m.refresh()
			}

		case key.Matches(msg, m.keys.ToggleHex):
			f.ToggleHex()
			m.refresh()

		case key.Matches(msg, m.keys.ToggleASCII):
			f.ToggleASCII()
			m.refresh()

		case key.Matches(msg, m.keys.ToggleTimestamps):
			f.ToggleTimestamps()
			m.refresh()

		case key.Matches(msg, m.keys.ToggleIndicators):
			f.ToggleIndicators()
			m.refresh()
		}
	}

	return m, nil
}

func (m *listenModel) View() string {
	content := "Initializing..."
	if m.IsReady() {
		content = m.terminal.View()
	}

	if m.IsPaused() {
		m.statusBar.SetTitle("PAUSED")
	} else {
		m.statusBar.SetTitle("LISTEN")
	}

	views := []string{styles.ContentBorderStyle.Render(content)}
	if m.help.ShowAll {
		views = append(views, styles.HelpStyle.Render(m.help.View(m.keys)))
	}
	views = append(views, m.statusBar.View(time.Now().Format("15:04:05")))

	return lipgloss.JoinVertical(lipgloss.Left, views...)
}
