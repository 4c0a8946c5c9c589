package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"postgrab/pkg/progress"
)

func TestModel(t *testing.T) {
	m := NewModel("kemono.su/patreon/user/1")

	m.Update(PostStartedMsg{ID: "42", Remaining: 9, Total: 10})
	if m.postsTotal != 10 || m.currentPost != "42" {
		t.Errorf("post state not recorded: total=%d current=%q", m.postsTotal, m.currentPost)
	}

	m.Update(FileStartMsg{ID: 1, Name: "a.jpg"})
	m.Update(FileStartMsg{ID: 2, Name: "clip.mp4"})
	if got := len(m.ActiveFiles()); got != 2 {
		t.Fatalf("Expected 2 active files, got %d", got)
	}

	// a resumed file starts at 100; only later bytes count
	m.Update(FileProgressMsg{ID: 1, Position: 100, Total: 400})
	m.Update(FileProgressMsg{ID: 1, Position: 400, Total: 400})
	m.Update(FileFinishMsg{ID: 1, Status: progress.StatusSuccess})

	m.Update(FileStatusMsg{ID: 2, Status: progress.StatusWaiting})
	if f := m.active[2]; f.Status != progress.StatusWaiting {
		t.Errorf("Expected waiting status, got %s", f.Status)
	}
	m.Update(FileFinishMsg{ID: 2, Status: progress.StatusFailed})

	completed, failed, written := m.Stats()
	if completed != 1 || failed != 1 {
		t.Errorf("Expected 1 completed and 1 failed, got %d and %d", completed, failed)
	}
	if written != 300 {
		t.Errorf("Expected 300 bytes written, got %d", written)
	}
	if len(m.ActiveFiles()) != 0 || len(m.bars) != 0 {
		t.Error("Finished files should leave the active set")
	}
	if len(m.recent) != 2 {
		t.Errorf("Expected 2 recent files, got %d", len(m.recent))
	}

	// messages for unknown ids are ignored
	m.Update(FileProgressMsg{ID: 99, Position: 10, Total: 10})
	m.Update(FileFinishMsg{ID: 99, Status: progress.StatusSuccess})
	if completed, _, _ := m.Stats(); completed != 1 {
		t.Errorf("Unknown file changed the stats")
	}
}

func TestRecentIsBounded(t *testing.T) {
	m := NewModel("x")
	for i := 0; i < maxRecent+3; i++ {
		m.Update(FileStartMsg{ID: i, Name: "f"})
		m.Update(FileFinishMsg{ID: i, Status: progress.StatusDone})
	}
	if len(m.recent) != maxRecent {
		t.Errorf("Expected %d recent files, got %d", maxRecent, len(m.recent))
	}
}

func TestLogsAreBounded(t *testing.T) {
	m := NewModel("x")
	for i := 0; i < maxLogMessages+10; i++ {
		m.Update(LogMsg{Level: "INFO", Message: "line"})
	}
	if len(m.logs) != maxLogMessages {
		t.Errorf("Expected %d log messages, got %d", maxLogMessages, len(m.logs))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(m.logs) != 0 {
		t.Error("ctrl+l should clear the log")
	}
}

func TestView(t *testing.T) {
	m := NewModel("creator")
	if m.View() != "Initializing..." {
		t.Error("View before the first resize should be a placeholder")
	}

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	m.Update(FileStartMsg{ID: 1, Name: "clip.mp4"})
	m.Update(FileProgressMsg{ID: 1, Position: 50, Total: 100})

	view := m.View()
	for _, want := range []string{"TRANSFERS", "clip.mp4", "creator"} {
		if !strings.Contains(view, want) {
			t.Errorf("View is missing %q", want)
		}
	}

	_, cmd := m.Update(DoneMsg{Summary: "all done"})
	if cmd == nil {
		t.Error("DoneMsg should quit the program")
	}
	if m.View() != "all done" {
		t.Errorf("Finished view should be the summary, got %q", m.View())
	}
}

func TestQuitKey(t *testing.T) {
	m := NewModel("x")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce a QuitMsg")
	}
}

func TestTrackerThrottlesAndFlushes(t *testing.T) {
	var sent []tea.Msg
	tr := &tracker{send: func(msg tea.Msg) { sent = append(sent, msg) }, id: 7}

	tr.Update(0, 1000)
	tr.Update(10, 1000)
	tr.Update(20, 1000)
	if len(sent) != 1 {
		t.Fatalf("Expected updates to be throttled, got %d messages", len(sent))
	}

	tr.Finish(progress.StatusSuccess)
	if len(sent) != 3 {
		t.Fatalf("Expected a flushed update and a finish, got %d messages", len(sent))
	}
	if p, ok := sent[1].(FileProgressMsg); !ok || p.Position != 20 {
		t.Errorf("Expected the held back position 20, got %#v", sent[1])
	}
	if f, ok := sent[2].(FileFinishMsg); !ok || f.ID != 7 {
		t.Errorf("Expected a finish message, got %#v", sent[2])
	}

	sent = nil
	tr.Update(1000, 1000)
	if len(sent) != 1 {
		t.Error("The final position is never throttled")
	}
}

func TestDashboardRunsAndFinishes(t *testing.T) {
	var out bytes.Buffer
	d := New("creator", tea.WithInput(nil), tea.WithOutput(&out), tea.WithoutSignalHandler())
	d.Start()

	d.PostStarted("1", 0, 1)
	tr := d.NewTracker("a.jpg")
	tr.Update(0, 10)
	tr.Update(10, 10)
	tr.Finish(progress.StatusSuccess)
	d.Log("INFO", "crawled %d posts", 1)

	finished := make(chan error, 1)
	go func() { finished <- d.Finish("summary") }()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Dashboard returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dashboard did not exit")
	}

	select {
	case <-d.Done():
	default:
		t.Error("Done should be closed after Finish")
	}
}

func TestFormatBytes(t *testing.T) {
	if FormatBytes(-1) != "?" {
		t.Error("Unknown sizes should render as ?")
	}
	if FormatBytes(1024) != "1.00KB" {
		t.Errorf("FormatBytes(1024) = %s", FormatBytes(1024))
	}
	if FormatSpeed(1024) != "1.00KB/s" {
		t.Errorf("FormatSpeed(1024) = %s", FormatSpeed(1024))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "00:00"},
		{65 * time.Second, "01:05"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
