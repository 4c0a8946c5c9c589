package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"postgrab/pkg/progress"
)

// PostStartedMsg is sent when a worker picks up a post
type PostStartedMsg struct {
	ID        string
	Remaining int
	Total     int
}

// FileStartMsg is sent when a transfer begins
type FileStartMsg struct {
	ID   int
	Name string
}

// FileProgressMsg is sent to update transfer progress
type FileProgressMsg struct {
	ID       int
	Position int64
	Total    int64
}

// FileStatusMsg is sent when a transfer changes state
type FileStatusMsg struct {
	ID     int
	Status progress.Status
}

// FileFinishMsg is sent once when a transfer ends
type FileFinishMsg struct {
	ID     int
	Status progress.Status
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg ends the dashboard, leaving the summary on screen
type DoneMsg struct {
	Summary string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case PostStartedMsg:
		m.postStarted(msg.ID, msg.Remaining, msg.Total)
		return m, nil

	case FileStartMsg:
		m.addFile(msg.ID, msg.Name)
		return m, nil

	case FileProgressMsg:
		m.updateFile(msg.ID, msg.Position, msg.Total)
		return m, nil

	case FileStatusMsg:
		m.setStatus(msg.ID, msg.Status)
		return m, nil

	case FileFinishMsg:
		m.finishFile(msg.ID, msg.Status)
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.finished = true
		m.summary = msg.Summary
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.addLog("WARN", "Stopping, partial files are kept for the next run")
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logs = nil
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
