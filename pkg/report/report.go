// Package report aggregates the outcome of a run.
//
// Workers build a Tally per post and hand it to a Collector; the Collector's
// goroutine is the only writer of the run's Report.
package report

import (
	"fmt"

	"github.com/inhies/go-bytesize"
)

// Tally is one worker's bookkeeping for a single post.
type Tally struct {
	Bytes   uint64
	Success uint64
	Skipped []string
	Failed  []string
}

// AddSuccess counts a finished file that contributed n new bytes.
func (t *Tally) AddSuccess(n int64) {
	t.Success++
	if n > 0 {
		t.Bytes += uint64(n)
	}
}

func (t *Tally) AddSkipped(ref string) {
	t.Skipped = append(t.Skipped, ref)
}

func (t *Tally) AddFailed(ref string) {
	t.Failed = append(t.Failed, ref)
}

// Files returns the number of files the tally accounts for.
func (t *Tally) Files() int {
	return int(t.Success) + len(t.Skipped) + len(t.Failed)
}

// Report is the aggregate of a whole run.
type Report struct {
	TotalBytes   uint64
	SuccessCount uint64
	Skipped      []string
	Failed       []string
}

// Merge folds t into r. Merging is order independent for the counters;
// the lists keep merge order.
func (r *Report) Merge(t Tally) {
	r.TotalBytes += t.Bytes
	r.SuccessCount += t.Success
	r.Skipped = append(r.Skipped, t.Skipped...)
	r.Failed = append(r.Failed, t.Failed...)
}

// Clone returns a deep copy of r.
func (r Report) Clone() Report {
	r.Skipped = append([]string(nil), r.Skipped...)
	r.Failed = append([]string(nil), r.Failed...)
	return r
}

// Size formats TotalBytes for humans, e.g. "1.50MB".
func (r Report) Size() string {
	return bytesize.New(float64(r.TotalBytes)).String()
}

func (r Report) String() string {
	return fmt.Sprintf("%d files, %s, %d skipped, %d failed",
		r.SuccessCount, r.Size(), len(r.Skipped), len(r.Failed))
}

// Collector owns a Report and merges tallies submitted from any goroutine.
type Collector struct {
	in    chan Tally
	snaps chan chan Report
	done  chan struct{}
	final Report
}

// NewCollector starts the collecting goroutine. buffer sizes the submission
// channel; workers block only when it is full.
func NewCollector(buffer int) *Collector {
	c := &Collector{
		in:    make(chan Tally, buffer),
		snaps: make(chan chan Report),
		done:  make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Collector) run() {
	var r Report
	for {
		select {
		case t, ok := <-c.in:
			if !ok {
				c.final = r
				close(c.done)
				return
			}
			r.Merge(t)
		case req := <-c.snaps:
			req <- r.Clone()
		}
	}
}

// Submit hands a tally to the collector. It must not be called after Close.
func (c *Collector) Submit(t Tally) {
	c.in <- t
}

// Snapshot returns a copy of the report as merged so far.
func (c *Collector) Snapshot() Report {
	req := make(chan Report, 1)
	select {
	case c.snaps <- req:
		return <-req
	case <-c.done:
		return c.final.Clone()
	}
}

// Close waits for every submitted tally to be merged and returns the final
// report. Close must be called exactly once.
func (c *Collector) Close() Report {
	close(c.in)
	<-c.done
	return c.final.Clone()
}
