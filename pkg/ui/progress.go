package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/schollz/progressbar/v3"
	"postgrab/pkg/progress"
)

// BarReporter renders a run as one bar over the posts, described with the
// bytes written so far. Files that end badly are printed above the bar.
type BarReporter struct {
	mu      sync.Mutex
	w       io.Writer
	bar     *progressbar.ProgressBar
	title   string
	total   int
	started int
	bytes   int64
	failed  int
	current string
}

// NewBarReporter creates a reporter drawing on w.
func NewBarReporter(w io.Writer, title string) *BarReporter {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(title),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "━",
			SaucerPadding: "─",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &BarReporter{w: w, bar: bar, title: title}
}

// PostStarted moves the bar to the number of posts taken off the queue.
func (r *BarReporter) PostStarted(id string, remaining, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if total != r.total {
		r.bar.ChangeMax(total)
		r.total = total
	}
	r.started = total - remaining
	r.current = id
	_ = r.bar.Set(r.started)
	r.describe()
}

// NewTracker returns a tracker feeding the byte counter.
func (r *BarReporter) NewTracker(name string) progress.Tracker {
	return &barTracker{r: r, name: name, last: -1}
}

// Started returns how many posts have been picked up.
func (r *BarReporter) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Bytes returns the bytes written across all trackers.
func (r *BarReporter) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Failed returns the number of files reported as failed.
func (r *BarReporter) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Close completes the bar.
func (r *BarReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bar.Finish()
}

// describe must be called with mu held.
func (r *BarReporter) describe() {
	desc := fmt.Sprintf("%s %s", r.title, bytesize.New(float64(r.bytes)))
	if r.current != "" {
		desc += " " + Dim(r.current)
	}
	r.bar.Describe(desc)
}

func (r *BarReporter) add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
	r.describe()
}

func (r *BarReporter) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Clear()
	fmt.Fprintln(r.w, line)
}

type barTracker struct {
	r    *BarReporter
	name string
	last int64
}

func (t *barTracker) Update(position, total int64) {
	if t.last >= 0 && position > t.last {
		t.r.add(position - t.last)
	}
	t.last = position
}

func (t *barTracker) SetStatus(s progress.Status) {
	switch s {
	case progress.StatusWaiting:
		t.r.println(fmt.Sprintf(" %s\t%s", Yellow("Waiting"), t.name))
	case progress.StatusReconnecting:
		t.r.println(fmt.Sprintf(" %s\t%s", Yellow("Reconnecting"), t.name))
	}
}

func (t *barTracker) Finish(s progress.Status) {
	if s != progress.StatusFailed {
		return
	}
	t.r.mu.Lock()
	t.r.failed++
	t.r.mu.Unlock()
	t.r.println(fmt.Sprintf(" %s\t%s", Red("Failed"), t.name))
}
