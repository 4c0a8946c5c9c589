// Package progress defines what the download pipeline reports about its
// work. Rendering lives elsewhere; see pkg/ui.
package progress

import "sync"

// Status tags a transfer state for display.
type Status string

const (
	StatusDownloading  Status = "downloading"
	StatusWaiting      Status = "waiting"
	StatusRetrying     Status = "retrying"
	StatusReconnecting Status = "reconnecting"
	StatusSuccess      Status = "success"
	StatusDone         Status = "done"
	StatusSkipped      Status = "skipped"
	StatusFailed       Status = "failed"
)

// Tracker follows one file transfer. Total is -1 when unknown.
type Tracker interface {
	Update(position, total int64)
	SetStatus(s Status)
	// Finish is called once with a terminal status.
	Finish(s Status)
}

// Reporter receives run-level progress and hands out file trackers.
// Implementations must be safe for concurrent use.
type Reporter interface {
	// PostStarted is called when a worker pops a post; remaining is the
	// queue length at pop time.
	PostStarted(id string, remaining, total int)
	NewTracker(name string) Tracker
}

// Nop discards all progress.
type Nop struct{}

func (Nop) PostStarted(string, int, int) {}
func (Nop) NewTracker(string) Tracker    { return Nop{} }
func (Nop) Update(int64, int64)          {}
func (Nop) SetStatus(Status)             {}
func (Nop) Finish(Status)                {}

// Event is one observation captured by a Recorder.
type Event struct {
	Name     string
	Status   Status
	Position int64
	Total    int64
}

// Recorder keeps every status change and final position. It is meant for
// tests and for callers that render after the fact.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	posts  []string
}

func (r *Recorder) PostStarted(id string, remaining, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, id)
}

func (r *Recorder) NewTracker(name string) Tracker {
	return &recordingTracker{r: r, name: name, total: -1}
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Statuses returns the status sequence reported for name.
func (r *Recorder) Statuses(name string) []Status {
	var out []Status
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev.Status)
		}
	}
	return out
}

// Posts returns post ids in the order workers started them.
func (r *Recorder) Posts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.posts...)
}

type recordingTracker struct {
	r        *Recorder
	name     string
	position int64
	total    int64
}

func (t *recordingTracker) Update(position, total int64) {
	t.position, t.total = position, total
}

func (t *recordingTracker) SetStatus(s Status) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.events = append(t.r.events, Event{Name: t.name, Status: s, Position: t.position, Total: t.total})
}

func (t *recordingTracker) Finish(s Status) {
	t.SetStatus(s)
}
