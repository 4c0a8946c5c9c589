package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
	"postgrab/pkg/progress"
	"postgrab/pkg/retry"
)

// Status is the terminal state of a transfer.
type Status int

const (
	Success Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes how a transfer ended. Bytes counts what this call
// wrote, across reconnects; Size is the length of the destination file.
type Outcome struct {
	Status Status
	Bytes  int64
	Size   int64
	Err    error
}

// Budget holds the retries left for one file.
type Budget struct {
	// Content is spent on unexpected status codes.
	Content int
	// Transport is spent on failed requests and dropped streams.
	Transport int
	// Write is spent on failed writes to the destination.
	Write int
	// MaxRateLimitWaits caps 429 waits; 0 means no cap. Waits never
	// spend the other budgets.
	MaxRateLimitWaits int
}

// NewBudget returns a budget with retries for both content and transport
// failures. A maxRateLimitWaits of 0 leaves 429 waits unbounded.
func NewBudget(retries, writeRetries, maxRateLimitWaits int) Budget {
	return Budget{
		Content:           max(retries, 0),
		Transport:         max(retries, 0),
		Write:             max(writeRetries, 0),
		MaxRateLimitWaits: max(maxRateLimitWaits, 0),
	}
}

func spend(n *int) bool {
	if *n <= 0 {
		return false
	}
	*n--
	return true
}

// State is the per-file bookkeeping of a running transfer. Total is -1
// while the expected size is unknown.
type State struct {
	Destination string
	Existing    int64
	Total       int64
	Budget      Budget
}

// Opener issues the GET for a file, asking for the bytes from offset on
// when offset is positive.
type Opener interface {
	Open(ctx context.Context, url string, offset int64) (*http.Response, error)
}

// Options configures a Transferer.
type Options struct {
	RateLimitDelay time.Duration
	ErrorDelay     time.Duration
	ReconnectDelay time.Duration
	BufferSize     int
	Logger         logger.Logger
}

// Transferer downloads single files, resuming from whatever is already on
// disk.
type Transferer struct {
	opener Opener
	fs     afero.Fs
	opts   Options
	log    logger.Logger
}

// New creates a Transferer writing to fs.
func New(opener Opener, fs afero.Fs, opts Options) *Transferer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32 * 1024
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Transferer{
		opener: opener,
		fs:     fs,
		opts:   opts,
		log:    log.WithField("component", "transfer"),
	}
}

// Transfer downloads url into dest. An existing dest is resumed with a
// ranged request. A partial file is never removed, so a later run picks up
// where this one stopped.
func (t *Transferer) Transfer(ctx context.Context, url, dest string, budget Budget, tracker progress.Tracker) Outcome {
	if tracker == nil {
		tracker = progress.Nop{}
	}
	st := &State{Destination: dest, Total: -1, Budget: budget}
	log := t.log.WithFields(map[string]interface{}{"url": url, "file": dest})
	var written int64
	waits := 0

	fail := func(err error) Outcome {
		log.WithError(err).Warn("transfer failed")
		tracker.Finish(progress.StatusFailed)
		return Outcome{Status: Failed, Bytes: written, Size: t.size(dest), Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "transfer cancelled"))
		}

		existing, err := t.probe(dest)
		if err != nil {
			return fail(err)
		}
		st.Existing = existing

		resp, err := t.opener.Open(ctx, url, existing)
		if err != nil {
			if ctx.Err() != nil || !spend(&st.Budget.Transport) {
				return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "request failed"))
			}
			log.WithError(err).DebugWithFields("request failed, retrying", map[string]interface{}{
				"retries_left": st.Budget.Transport,
			})
			tracker.SetStatus(progress.StatusRetrying)
			if err := retry.Wait(ctx, t.opts.ErrorDelay); err != nil {
				return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "transfer cancelled"))
			}
			continue
		}

		switch code := resp.StatusCode; {
		case code == http.StatusRequestedRangeNotSatisfiable && existing > 0:
			discard(resp)
			log.DebugWithFields("already complete", map[string]interface{}{"size": existing})
			tracker.Update(existing, existing)
			tracker.Finish(progress.StatusDone)
			return Outcome{Status: Success, Bytes: written, Size: existing}

		case code == http.StatusTooManyRequests:
			discard(resp)
			waits++
			if limit := st.Budget.MaxRateLimitWaits; limit > 0 && waits > limit {
				return fail(errs.WithCode(errs.ErrorTypeTransferStatus, code, "rate limited too many times"))
			}
			log.DebugWithFields("rate limited, waiting", map[string]interface{}{"delay": t.opts.RateLimitDelay, "waits": waits})
			tracker.SetStatus(progress.StatusWaiting)
			if err := retry.Wait(ctx, t.opts.RateLimitDelay); err != nil {
				return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "transfer cancelled"))
			}
			continue

		case code == http.StatusOK, code == http.StatusPartialContent:

		default:
			discard(resp)
			if !spend(&st.Budget.Content) {
				return fail(errs.WithCode(errs.ErrorTypeTransferStatus, code, "unexpected status"))
			}
			log.DebugWithFields("unexpected status, retrying", map[string]interface{}{
				"status":       code,
				"retries_left": st.Budget.Content,
			})
			tracker.SetStatus(progress.StatusRetrying)
			if err := retry.Wait(ctx, t.opts.ErrorDelay); err != nil {
				return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "transfer cancelled"))
			}
			continue
		}

		n, err := t.stream(resp, st, tracker)
		written += n
		if err == nil {
			tracker.Finish(progress.StatusSuccess)
			log.DebugWithFields("transfer complete", map[string]interface{}{"bytes": written, "size": st.Total})
			return Outcome{Status: Success, Bytes: written, Size: st.Total}
		}
		if errs.Is(err, errs.ErrorTypeWrite) || ctx.Err() != nil || !spend(&st.Budget.Transport) {
			return fail(err)
		}

		log.WithError(err).DebugWithFields("stream dropped, reconnecting", map[string]interface{}{
			"flushed":      st.Existing + n,
			"retries_left": st.Budget.Transport,
		})
		tracker.SetStatus(progress.StatusReconnecting)
		if err := retry.Wait(ctx, t.opts.ReconnectDelay); err != nil {
			return fail(errs.Wrap(errs.ErrorTypeTransferTransport, err, "transfer cancelled"))
		}
	}
}

// probe returns the length of dest, or 0 when it does not exist yet.
func (t *Transferer) probe(dest string) (int64, error) {
	info, err := t.fs.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errs.Wrap(errs.ErrorTypeWrite, err, "cannot stat destination")
	}
	if info.IsDir() {
		return 0, errs.New(errs.ErrorTypeWrite, dest+" is a directory")
	}
	return info.Size(), nil
}

func (t *Transferer) size(dest string) int64 {
	n, _ := t.probe(dest)
	return n
}

// stream copies the body into the destination. A 206 appends to the
// existing bytes; a 200 means the server ignored the range, so the file is
// rewritten from the start.
func (t *Transferer) stream(resp *http.Response, st *State, tracker progress.Tracker) (int64, error) {
	defer resp.Body.Close()

	base := st.Existing
	flag := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent && base > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
		base = 0
	}

	f, err := t.fs.OpenFile(st.Destination, flag, 0644)
	if err != nil {
		return 0, errs.Wrap(errs.ErrorTypeWrite, err, "cannot open destination")
	}

	st.Total = -1
	if resp.ContentLength >= 0 {
		st.Total = base + resp.ContentLength
	}
	tracker.SetStatus(progress.StatusDownloading)
	tracker.Update(base, st.Total)

	w := &retryWriter{w: f, budget: &st.Budget.Write}
	buf := make([]byte, t.opts.BufferSize)
	var n int64
	for {
		m, rerr := resp.Body.Read(buf)
		if m > 0 {
			if _, werr := w.Write(buf[:m]); werr != nil {
				f.Close()
				return n, errs.Wrap(errs.ErrorTypeWrite, werr, "cannot write destination")
			}
			n += int64(m)
			tracker.Update(clamp(base+n, st.Total), st.Total)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			return n, errs.Wrap(errs.ErrorTypeTransferTransport, rerr, "stream interrupted")
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return n, errs.Wrap(errs.ErrorTypeWrite, err, "cannot sync destination")
	}
	if err := f.Close(); err != nil {
		return n, errs.Wrap(errs.ErrorTypeWrite, err, "cannot close destination")
	}
	if st.Total < 0 || base+n > st.Total {
		st.Total = base + n
	}
	return n, nil
}

func clamp(pos, total int64) int64 {
	if total >= 0 && pos > total {
		return total
	}
	return pos
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// retryWriter retries short or failed writes while the shared write budget
// lasts.
type retryWriter struct {
	w      io.Writer
	budget *int
}

func (rw *retryWriter) Write(p []byte) (int, error) {
	done := 0
	for {
		n, err := rw.w.Write(p[done:])
		done += n
		if err == nil && done == len(p) {
			return done, nil
		}
		if err == nil {
			err = io.ErrShortWrite
		}
		if *rw.budget <= 0 {
			return done, err
		}
		*rw.budget--
	}
}
