// Package tui renders a running download as a full-screen dashboard.
//
// Dashboard implements progress.Reporter, so the engine drives it the same
// way it drives the plain progress bar.
package tui

import (
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"postgrab/pkg/progress"
)

// Dashboard runs the bubbletea program for one download.
type Dashboard struct {
	program *tea.Program
	nextID  atomic.Int64
	done    chan struct{}
	err     error
}

// New creates a dashboard titled after the run target. Extra options are
// passed to bubbletea; tests use them to replace the terminal.
func New(title string, opts ...tea.ProgramOption) *Dashboard {
	model := NewModel(title)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Dashboard{
		program: tea.NewProgram(&model, opts...),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background. Done is closed when it exits,
// either through Finish or because the user quit.
func (d *Dashboard) Start() {
	go func() {
		defer close(d.done)
		_, d.err = d.program.Run()
	}()
}

// Done is closed once the program has exited.
func (d *Dashboard) Done() <-chan struct{} {
	return d.done
}

// Finish replaces the dashboard with summary and waits for the program to
// exit.
func (d *Dashboard) Finish(summary string) error {
	d.program.Send(DoneMsg{Summary: summary})
	<-d.done
	return d.err
}

// Log adds a line to the log panel
func (d *Dashboard) Log(level, format string, args ...interface{}) {
	d.program.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// PostStarted implements progress.Reporter
func (d *Dashboard) PostStarted(id string, remaining, total int) {
	d.program.Send(PostStartedMsg{ID: id, Remaining: remaining, Total: total})
}

// NewTracker implements progress.Reporter
func (d *Dashboard) NewTracker(name string) progress.Tracker {
	id := int(d.nextID.Add(1))
	d.program.Send(FileStartMsg{ID: id, Name: name})
	return &tracker{send: d.program.Send, id: id}
}

// tracker throttles progress messages; every status change is sent and a
// held back position is flushed before Finish.
type tracker struct {
	send    func(tea.Msg)
	id      int
	last    time.Time
	pending *FileProgressMsg
}

const progressInterval = 100 * time.Millisecond

func (t *tracker) Update(position, total int64) {
	msg := FileProgressMsg{ID: t.id, Position: position, Total: total}
	now := time.Now()
	if now.Sub(t.last) < progressInterval && position != total {
		t.pending = &msg
		return
	}
	t.last = now
	t.pending = nil
	t.send(msg)
}

func (t *tracker) SetStatus(s progress.Status) {
	t.send(FileStatusMsg{ID: t.id, Status: s})
}

func (t *tracker) Finish(s progress.Status) {
	if t.pending != nil {
		t.send(*t.pending)
		t.pending = nil
	}
	t.send(FileFinishMsg{ID: t.id, Status: s})
}
