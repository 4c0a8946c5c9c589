package downloader

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"postgrab/pkg/logger"
	"postgrab/pkg/report"
)

// WorkQueue hands post ids to workers, newest pushed first out.
type WorkQueue struct {
	mu    sync.Mutex
	ids   []string
	total int
}

// NewWorkQueue creates a queue holding a copy of ids. The last id is popped
// first.
func NewWorkQueue(ids []string) *WorkQueue {
	return &WorkQueue{ids: append([]string(nil), ids...), total: len(ids)}
}

// Pop removes the last id. remaining is the queue length after the pop and
// total the number of ids the queue started with.
func (q *WorkQueue) Pop() (id string, remaining, total int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ids)
	if n == 0 {
		return "", 0, q.total, false
	}
	id = q.ids[n-1]
	q.ids = q.ids[:n-1]
	return id, n - 1, q.total, true
}

// Len returns the number of ids still queued.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Total returns the number of ids the queue started with.
func (q *WorkQueue) Total() int {
	return q.total
}

// Job is one popped post.
type Job struct {
	PostID    string
	Remaining int
	Total     int
	Worker    int
}

// Position is the 1-based index of the job among all queued posts.
func (j Job) Position() int {
	return j.Total - j.Remaining
}

// Handler processes one post and returns its tally. Failures are recorded in
// the tally, never returned.
type Handler func(ctx context.Context, job Job) report.Tally

// WorkerPool drains a WorkQueue with a fixed number of workers and merges
// their tallies into one report.
type WorkerPool struct {
	numWorkers int
	queue      *WorkQueue
	handler    Handler
	logger     logger.Logger
}

// NewWorkerPool creates a pool of numWorkers workers (at least one).
func NewWorkerPool(numWorkers int, queue *WorkQueue, handler Handler, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		queue:      queue,
		handler:    handler,
		logger:     log.WithField("component", "pool"),
	}
}

// Run blocks until the queue is empty or ctx is cancelled. The report
// includes every post a worker finished, also when Run returns ctx's error.
func (wp *WorkerPool) Run(ctx context.Context) (report.Report, error) {
	start := time.Now()
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
		"posts":       wp.queue.Total(),
	})

	collector := report.NewCollector(wp.numWorkers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < wp.numWorkers; i++ {
		id := i
		g.Go(func() error {
			return wp.worker(gctx, id, collector)
		})
	}
	err := g.Wait()
	r := collector.Close()

	wp.logger.InfoWithFields("Worker pool stopped", map[string]interface{}{
		"duration": time.Since(start),
		"success":  r.SuccessCount,
		"skipped":  len(r.Skipped),
		"failed":   len(r.Failed),
	})
	return r, err
}

// worker is the main worker routine
func (wp *WorkerPool) worker(ctx context.Context, id int, collector *report.Collector) error {
	wp.logger.DebugWithFields("Worker started", map[string]interface{}{"worker_id": id})

	for {
		if err := ctx.Err(); err != nil {
			wp.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return err
		}

		postID, remaining, total, ok := wp.queue.Pop()
		if !ok {
			wp.logger.DebugWithFields("Worker stopping - queue drained", map[string]interface{}{
				"worker_id": id,
			})
			return nil
		}

		job := Job{PostID: postID, Remaining: remaining, Total: total, Worker: id}
		tally := wp.handler(ctx, job)
		collector.Submit(tally)

		wp.logger.DebugWithFields("Worker finished post", map[string]interface{}{
			"worker_id": id,
			"post":      postID,
			"files":     tally.Files(),
			"remaining": remaining,
		})
	}
}
