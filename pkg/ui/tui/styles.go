package tui

import (
	"github.com/charmbracelet/lipgloss"
	"postgrab/pkg/progress"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	alertRed    = lipgloss.Color("#FF0000")
	darkBg      = lipgloss.Color("#0A0E27")
	darkBg2     = lipgloss.Color("#1A1E37")
	dimWhite    = lipgloss.Color("#B0B0B0")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	bannerStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Align(lipgloss.Center)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Background(darkBg2).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	fileActiveStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	fileDoneStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true).
			PaddingLeft(2)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingLeft(2)
)

// statusStyle picks the color of a transfer status label.
func statusStyle(s progress.Status) lipgloss.Style {
	switch s {
	case progress.StatusSuccess, progress.StatusDone:
		return successStyle
	case progress.StatusFailed:
		return errorStyle
	case progress.StatusWaiting, progress.StatusRetrying, progress.StatusReconnecting:
		return warningStyle
	default:
		return statsValueStyle
	}
}

func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return alertRed
	case "WARN":
		return neonOrange
	case "SUCCESS":
		return neonGreen
	case "INFO":
		return neonCyan
	default:
		return dimWhite
	}
}
