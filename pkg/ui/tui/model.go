package tui

import (
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/inhies/go-bytesize"
	"postgrab/pkg/progress"
)

const (
	maxLogMessages = 50
	maxRecent      = 5
)

// FileItem is one transfer shown on the dashboard. Position and Total are
// in bytes; Total is -1 while unknown.
type FileItem struct {
	ID       int
	Name     string
	Status   progress.Status
	Position int64
	Total    int64
	Started  time.Time
	Speed    float64

	seen bool
}

// Fraction returns the completed share of the file, or 0 when the size is
// unknown.
func (f *FileItem) Fraction() float64 {
	if f.Total <= 0 {
		return 0
	}
	p := float64(f.Position) / float64(f.Total)
	if p > 1 {
		return 1
	}
	return p
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the dashboard state. It is only touched from the bubbletea
// event loop.
type Model struct {
	spinner spinner.Model
	bars    map[int]bar.Model

	title  string
	active map[int]*FileItem
	order  []int
	recent []*FileItem

	postsTotal     int
	postsRemaining int
	currentPost    string

	completed int
	failed    int
	written   int64
	start     time.Time

	width    int
	height   int
	showHelp bool
	finished bool
	summary  string
	logs     []LogMessage
}

// NewModel creates a dashboard model titled after the run target
func NewModel(title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	return Model{
		spinner: s,
		bars:    make(map[int]bar.Model),
		title:   title,
		active:  make(map[int]*FileItem),
		start:   time.Now(),
	}
}

// Init starts the spinner and the refresh tick
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) postStarted(id string, remaining, total int) {
	m.currentPost = id
	m.postsRemaining = remaining
	m.postsTotal = total
}

func (m *Model) addFile(id int, name string) {
	m.active[id] = &FileItem{
		ID:      id,
		Name:    name,
		Status:  progress.StatusDownloading,
		Total:   -1,
		Started: time.Now(),
	}
	m.order = append(m.order, id)

	b := bar.New(bar.WithDefaultGradient())
	b.Width = 40
	m.bars[id] = b
}

// updateFile records a new position. Bytes count from the first position
// seen, so resumed files only add what this run writes.
func (m *Model) updateFile(id int, position, total int64) {
	f, ok := m.active[id]
	if !ok {
		return
	}
	if f.seen && position > f.Position {
		m.written += position - f.Position
	}
	if secs := time.Since(f.Started).Seconds(); secs > 0 && f.seen {
		f.Speed = float64(position) / secs
	}
	f.seen = true
	f.Position = position
	f.Total = total
}

func (m *Model) setStatus(id int, s progress.Status) {
	f, ok := m.active[id]
	if !ok {
		return
	}
	f.Status = s
	switch s {
	case progress.StatusWaiting:
		m.addLog("WARN", "Rate limited: "+f.Name)
	case progress.StatusRetrying:
		m.addLog("WARN", "Retrying: "+f.Name)
	case progress.StatusReconnecting:
		m.addLog("WARN", "Reconnecting: "+f.Name)
	}
}

func (m *Model) finishFile(id int, s progress.Status) {
	f, ok := m.active[id]
	if !ok {
		return
	}
	f.Status = s
	delete(m.active, id)
	delete(m.bars, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	switch s {
	case progress.StatusFailed:
		m.failed++
		m.addLog("ERROR", "Failed: "+f.Name)
	case progress.StatusDone:
		m.completed++
		m.addLog("INFO", "Already complete: "+f.Name)
	default:
		m.completed++
		m.addLog("SUCCESS", "Completed: "+f.Name)
	}

	m.recent = append(m.recent, f)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

func (m *Model) addLog(level, message string) {
	m.logs = append(m.logs, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logs) > maxLogMessages {
		m.logs = m.logs[len(m.logs)-maxLogMessages:]
	}
}

// ActiveFiles returns the running transfers in start order
func (m *Model) ActiveFiles() []*FileItem {
	files := make([]*FileItem, 0, len(m.order))
	for _, id := range m.order {
		if f := m.active[id]; f != nil {
			files = append(files, f)
		}
	}
	return files
}

// Stats returns the finished file counts and the bytes written.
func (m *Model) Stats() (completed, failed int, written int64) {
	return m.completed, m.failed, m.written
}

// speed returns the combined rate of the active transfers and the average
// rate of the run, in bytes per second.
func (m *Model) speed() (current, average float64) {
	for _, f := range m.active {
		current += f.Speed
	}
	if secs := time.Since(m.start).Seconds(); secs > 0 {
		average = float64(m.written) / secs
	}
	return current, average
}

// FormatBytes formats bytes to human readable format
func FormatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return bytesize.New(float64(n)).String()
}

// FormatSpeed formats speed in bytes per second
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}
