package styles

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the views use
var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(Surface1)

	HelpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Surface2).
			Padding(1, 2).
			Margin(1, 0)

	TimestampStyle = lipgloss.NewStyle().Foreground(Subtext0)
	RXStyle        = lipgloss.NewStyle().Foreground(Sky).Bold(true)
	TXStyle        = lipgloss.NewStyle().Foreground(Peach).Bold(true)

	LineHighStyle = lipgloss.NewStyle().Foreground(Green).Bold(true)
	LineLowStyle  = lipgloss.NewStyle().Foreground(Surface2)
)

type StatusType int

const (
	StatusConnecting StatusType = iota
	StatusConnected
	StatusDisconnected
	StatusError
)

// Indicator returns the one-character connection marker for status.
func Indicator(status StatusType) string {
	switch status {
	case StatusConnected:
		return lipgloss.NewStyle().Foreground(Green).Render("●")
	case StatusConnecting:
		return lipgloss.NewStyle().Foreground(Yellow).Render("○")
	case StatusError:
		return lipgloss.NewStyle().Foreground(Red).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(Red).Render("○")
	}
}
