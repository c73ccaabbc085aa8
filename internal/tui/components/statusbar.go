package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	usbserial "github.com/allbin/go-usbserial"
	"github.com/allbin/go-usbserial/internal/tui/styles"
)

// SignalsMsg reports the modem lines read by a poll.
type SignalsMsg struct {
	Signals usbserial.ModemSignals
	Err     error
}

type ConnectionInfo struct {
	Driver string
	Config usbserial.Config
}

// Summary formats the settings as "115200 8N1".
func (c ConnectionInfo) Summary() string {
	parity := strings.ToUpper(c.Config.Parity.String()[:1])
	s := fmt.Sprintf("%d %d%s%s", c.Config.BaudRate, c.Config.DataBits, parity, c.Config.StopBits)
	if c.Driver != "" {
		s = c.Driver + " " + s
	}
	return s
}

type StatusBar struct {
	title    string
	portName string
	status   styles.StatusType
	err      error
	width    int
	info     *ConnectionInfo
	signals  *usbserial.ModemSignals
	rx, tx   int
}

func NewStatusBar(title, portName string) *StatusBar {
	return &StatusBar{
		title:    title,
		portName: portName,
		status:   styles.StatusConnecting,
	}
}

func (sb *StatusBar) SetTitle(title string) {
	sb.title = title
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetConnectionInfo(info *ConnectionInfo) {
	sb.info = info
}

func (sb *StatusBar) SetConnected() {
	sb.status = styles.StatusConnected
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	sb.err = err
	if err != nil {
		sb.status = styles.StatusError
	} else {
		sb.status = styles.StatusDisconnected
	}
}

func (sb *StatusBar) Err() error {
	return sb.err
}

func (sb *StatusBar) SetSignals(s usbserial.ModemSignals) {
	sb.signals = &s
}

// AddTraffic counts bytes received and sent.
func (sb *StatusBar) AddTraffic(rx, tx int) {
	sb.rx += rx
	sb.tx += tx
}

func (sb *StatusBar) signalView() string {
	if sb.signals == nil {
		return ""
	}
	line := func(name string, on bool) string {
		if on {
			return styles.LineHighStyle.Render(name)
		}
		return styles.LineLowStyle.Render(name)
	}
	return strings.Join([]string{
		line("CTS", sb.signals.CTS),
		line("DSR", sb.signals.DSR),
		line("DCD", sb.signals.DCD),
		line("RI", sb.signals.RI),
	}, " ")
}

// View renders a single line: mode, port and state on the left, line
// signals, traffic and settings on the right.
func (sb *StatusBar) View(timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	mode := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(styles.Blue).
		Bold(true).
		Padding(0, 1).
		Render(sb.title)
	port := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portName)
	divider := lipgloss.NewStyle().
		Foreground(styles.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, styles.Indicator(sb.status)}
	if sb.err != nil {
		left = append(left, lipgloss.NewStyle().Foreground(styles.Red).Padding(0, 1).Render(sb.err.Error()))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	details := "⚡ serial"
	if sb.info != nil {
		details = "⚡ " + sb.info.Summary()
	}
	muted := lipgloss.NewStyle().Foreground(styles.Subtext0).Padding(0, 1)

	var right []string
	if s := sb.signalView(); s != "" {
		right = append(right, lipgloss.NewStyle().Padding(0, 1).Render(s), divider)
	}
	right = append(right,
		muted.Render(fmt.Sprintf("rx %d tx %d", sb.rx, sb.tx)), divider,
		muted.Render(details), divider,
		lipgloss.NewStyle().Foreground(styles.Subtext1).Padding(0, 1).Render(timestamp),
	)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, right...)

	spacerWidth := width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
