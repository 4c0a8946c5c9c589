package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"postgrab/pkg/progress"
)

const banner = `┌─┐┌─┐┌─┐┌┬┐┌─┐┬─┐┌─┐┌┐
├─┘│ │└─┐ │ │ ┬├┬┘├─┤├┴┐
┴  └─┘└─┘ ┴ └─┘┴└─┴ ┴└─┘`

// View renders the entire TUI
func (m *Model) View() string {
	if m.finished {
		return m.summary
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderActivePanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderRecentPanel(width),
		m.renderLogsPanel(width),
	)

	sections := []string{
		bannerStyle.Width(m.width).Render(banner),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func panel(width int, title string, lines ...string) string {
	body := append([]string{titleStyle.Render(" " + title + " ")}, lines...)
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, body...))
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m *Model) renderStatsPanel(width int) string {
	current, average := m.speed()
	done := m.postsTotal - m.postsRemaining

	lines := []string{
		stat("Target:", m.title),
		stat("Posts:", fmt.Sprintf("%d/%d", done, m.postsTotal)),
		stat("Files:", fmt.Sprintf("%d done, %d failed", m.completed, m.failed)),
		stat("Written:", FormatBytes(m.written)),
		stat("Speed:", FormatSpeed(current)+" (avg "+FormatSpeed(average)+")"),
		stat("Elapsed:", formatDuration(time.Since(m.start))),
	}
	if m.currentPost != "" {
		lines = append(lines, stat("Post:", m.spinner.View()+" "+m.currentPost))
	}
	return panel(width, "RUN", lines...)
}

func (m *Model) renderActivePanel(width int) string {
	files := m.ActiveFiles()
	if len(files) == 0 {
		return panel(width, "TRANSFERS", dimStyle.Render("No active transfers"))
	}

	var lines []string
	for _, f := range files {
		lines = append(lines, m.renderFile(f, width-4))
	}
	return panel(width, "TRANSFERS", lines...)
}

func (m *Model) renderFile(f *FileItem, width int) string {
	info := fmt.Sprintf("%s %s %s",
		fileActiveStyle.Render(truncate(f.Name, width/2)),
		dimStyle.Render(FormatBytes(f.Position)+"/"+FormatBytes(f.Total)),
		statusStyle(f.Status).Render(string(f.Status)),
	)

	b, ok := m.bars[f.ID]
	if !ok || f.Total < 0 {
		return info
	}
	b.Width = max(width-4, 10)
	return lipgloss.JoinVertical(lipgloss.Left, info, b.ViewAs(f.Fraction()))
}

func (m *Model) renderRecentPanel(width int) string {
	if len(m.recent) == 0 {
		return panel(width, "FINISHED", dimStyle.Render("Nothing finished yet"))
	}
	var lines []string
	for _, f := range m.recent {
		mark := successStyle.Render("✓")
		if f.Status == progress.StatusFailed {
			mark = errorStyle.Render("✗")
		}
		lines = append(lines, mark+fileDoneStyle.Render(truncate(f.Name, width-6)))
	}
	return panel(width, "FINISHED", lines...)
}

func (m *Model) renderLogsPanel(width int) string {
	start := len(m.logs) - 10
	if start < 0 {
		start = 0
	}

	var lines []string
	for _, l := range m.logs[start:] {
		ts := logTimestampStyle.Render(l.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(l.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", l.Level))
		lines = append(lines, fmt.Sprintf("%s %s %s", ts, level, truncate(l.Message, width-25)))
	}
	if len(lines) == 0 {
		lines = append(lines, dimStyle.Render("No logs yet..."))
	}
	return panel(width, "LOG", strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	help := `
  q/Q      stop the run; partial files resume next time
  ?        toggle this help
  ctrl+l   clear the log

  ` + successStyle.Render("green") + `    finished
  ` + warningStyle.Render("orange") + `   waiting, retrying or reconnecting
  ` + errorStyle.Render("red") + `      failed
`
	return panelStyle.Width(m.width).Render(help)
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
