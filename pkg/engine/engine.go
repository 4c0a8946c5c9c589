package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
	"postgrab/internal/downloader"
	"postgrab/pkg/address"
	"postgrab/pkg/checkpoint"
	"postgrab/pkg/config"
	"postgrab/pkg/crawler"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/fetcher"
	"postgrab/pkg/logger"
	"postgrab/pkg/media"
	"postgrab/pkg/progress"
	"postgrab/pkg/report"
	"postgrab/pkg/storage"
	"postgrab/pkg/transfer"
)

// Client is everything the engine asks of the network. *api.Client
// implements it.
type Client interface {
	crawler.PageSource
	fetcher.PostSource
	transfer.Opener
}

// Options configures a run.
type Options struct {
	// OutputDir receives the files; empty means a directory named after the
	// creator (or the post id for a single post address).
	OutputDir   string
	Concurrency int
	// Retries is the content and transport retry budget of each file.
	Retries           int
	WriteRetries      int
	MaxRateLimitWaits int
	Filter            media.Filter

	// Verbose writes a status line per file to StatusLogDir.
	Verbose      bool
	StatusLogDir string
	// FailedLog, when set, receives the failed URLs after the run.
	FailedLog string

	Checkpoint    bool
	CheckpointDir string

	// MinFreeSpaceMB warns when the output disk has less space left.
	MinFreeSpaceMB uint64

	Crawler  crawler.Options
	Transfer transfer.Options

	Fs       afero.Fs
	Progress progress.Reporter
	Logger   logger.Logger
}

// OptionsFromConfig maps a loaded configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	filter, err := media.ParseFilter(cfg.Download.MediaFilter)
	if err != nil {
		return Options{}, err
	}
	return Options{
		OutputDir:         cfg.Download.OutputDir,
		Concurrency:       cfg.Download.Concurrency,
		Retries:           cfg.Download.RetryBudget,
		WriteRetries:      cfg.Transfer.WriteRetries,
		MaxRateLimitWaits: cfg.Transfer.MaxRateLimitWaits,
		Filter:            filter,
		Verbose:           cfg.Download.Verbose,
		StatusLogDir:      ".",
		FailedLog:         cfg.Download.FailedLog,
		Checkpoint:        cfg.Download.Checkpoint,
		MinFreeSpaceMB:    cfg.Download.MinFreeSpaceMB,
		Crawler: crawler.Options{
			EmptyThreshold:  int64(cfg.Crawler.EmptyThreshold),
			Confirmations:   cfg.Crawler.Confirmations,
			ParseRetries:    cfg.Crawler.ParseRetries,
			ParseRetryDelay: cfg.Crawler.ParseRetryDelay,
			RateLimitDelay:  cfg.Transfer.RateLimitDelay,
		},
		Transfer: transfer.Options{
			RateLimitDelay: cfg.Transfer.RateLimitDelay,
			ErrorDelay:     cfg.Transfer.ErrorDelay,
			ReconnectDelay: cfg.Transfer.ReconnectDelay,
		},
	}, nil
}

// Engine runs downloads against one API client.
type Engine struct {
	client    Client
	opts      Options
	log       logger.Logger
	now       func() time.Time
	freeSpace func(path string) (uint64, error)
}

// New creates an Engine. Zero values in opts fall back to the defaults of
// DefaultConfig.
func New(client Client, opts Options) *Engine {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Progress == nil {
		opts.Progress = progress.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConfig().Download.Concurrency
	}
	if opts.StatusLogDir == "" {
		opts.StatusLogDir = "."
	}
	opts.Crawler.Logger = opts.Logger
	opts.Transfer.Logger = opts.Logger

	return &Engine{
		client:    client,
		opts:      opts,
		log:       opts.Logger.WithField("component", "engine"),
		now:       time.Now,
		freeSpace: diskFree,
	}
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// run is the state shared by the workers of one invocation.
type run struct {
	id         string
	addr       address.Address
	store      *storage.Manager
	fetcher    *fetcher.Fetcher
	transferer *transfer.Transferer
	statusLog  *report.StatusLog
	cpMgr      *checkpoint.Manager
	cp         *checkpoint.Checkpoint
	log        logger.Logger
}

// Run downloads every attachment reachable from addr. Only an output
// directory that cannot be created or a failed crawl abort the run; every
// other failure is recorded in the report. When ctx is cancelled Run returns
// the report so far together with ctx's error.
func (e *Engine) Run(ctx context.Context, addr address.Address) (*report.Report, error) {
	r := &run{id: uuid.NewString(), addr: addr}
	r.log = e.log.WithFields(map[string]interface{}{"run_id": r.id, "address": addr.BaseURL})

	outDir := e.opts.OutputDir
	if outDir == "" {
		outDir = addr.Creator()
	}
	store, err := storage.NewManager(e.opts.Fs, outDir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeWrite, err, outDir)
	}
	r.store = store
	e.checkFreeSpace(outDir, r.log)

	r.log.InfoWithFields("Starting download", map[string]interface{}{
		"output":      outDir,
		"concurrency": e.opts.Concurrency,
		"mode":        addr.Mode.String(),
		"page":        addr.Page.String(),
	})

	ids, err := crawler.New(e.client, e.opts.Crawler).Crawl(ctx, addr)
	if err != nil {
		return nil, err
	}
	r.log.InfoWithFields("Listing complete", map[string]interface{}{"posts": len(ids)})

	if e.opts.Checkpoint {
		if ids, err = e.resume(r, ids); err != nil {
			return nil, err
		}
	}

	if e.opts.Verbose {
		statusLog, err := report.OpenStatusLog(e.opts.Fs, e.opts.StatusLogDir, addr.Creator(), e.now())
		if err != nil {
			r.log.WithError(err).Warn("status log disabled")
		} else {
			r.statusLog = statusLog
			defer statusLog.Close()
		}
	}

	r.fetcher = fetcher.New(e.client, fetcher.Options{
		Domain:          addr.Domain,
		ParseRetries:    e.opts.Crawler.ParseRetries,
		ParseRetryDelay: e.opts.Crawler.ParseRetryDelay,
		Logger:          e.opts.Logger,
	})
	r.transferer = transfer.New(e.client, e.opts.Fs, e.opts.Transfer)

	pool := downloader.NewWorkerPool(e.opts.Concurrency, downloader.NewWorkQueue(ids),
		func(ctx context.Context, job downloader.Job) report.Tally {
			return e.processPost(ctx, r, job)
		}, e.opts.Logger)
	rep, runErr := pool.Run(ctx)

	if err := report.AppendFailedLog(e.opts.Fs, e.opts.FailedLog, rep.Failed); err != nil {
		r.log.WithError(err).Warn("could not write failure log")
	}
	r.log.InfoWithFields("Download finished", map[string]interface{}{
		"success": rep.SuccessCount,
		"bytes":   rep.TotalBytes,
		"skipped": len(rep.Skipped),
		"failed":  len(rep.Failed),
	})
	return &rep, runErr
}

// resume loads the address checkpoint and drops the posts it lists.
func (e *Engine) resume(r *run, ids []string) ([]string, error) {
	mgr, err := checkpoint.NewManager(e.opts.Fs, e.opts.CheckpointDir, r.addr.BaseURL)
	if err != nil {
		return nil, err
	}
	cp, err := mgr.LoadOrCreate(r.addr.BaseURL, r.addr.Creator(), r.id)
	if err != nil {
		return nil, err
	}
	if err := mgr.SetTotal(cp, len(ids)); err != nil {
		r.log.WithError(err).Warn("could not save checkpoint")
	}

	pending := ids[:0:0]
	for _, id := range ids {
		if !cp.IsCompleted(id) {
			pending = append(pending, id)
		}
	}
	r.log.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
		"completed": len(ids) - len(pending),
		"pending":   len(pending),
		"path":      mgr.Path(),
	})
	r.cpMgr, r.cp = mgr, cp
	return pending, nil
}

// processPost fetches one post and transfers its files one after another.
func (e *Engine) processPost(ctx context.Context, r *run, job downloader.Job) report.Tally {
	var tally report.Tally
	postURL := r.addr.PostURL(job.PostID)
	webURL := address.WebURL(postURL)
	log := r.log.WithFields(map[string]interface{}{"post": job.PostID, "worker_id": job.Worker})

	e.opts.Progress.PostStarted(job.PostID, job.Remaining, job.Total)
	log.DebugWithFields("Processing post", map[string]interface{}{
		"position": job.Position(),
		"total":    job.Total,
	})

	res, err := r.fetcher.Fetch(ctx, postURL)
	if err != nil {
		if ctx.Err() == nil {
			tally.AddFailed(webURL)
			e.status(r, webURL, job.PostID, "failed")
		}
		return tally
	}
	for _, ref := range res.Skipped {
		tally.AddSkipped(ref)
		e.status(r, webURL, ref, "skipped")
	}

	for _, att := range res.Attachments {
		if ctx.Err() != nil {
			return tally
		}
		e.transferOne(ctx, r, webURL, att, &tally, log)
	}

	if r.cp != nil && len(tally.Failed) == 0 && ctx.Err() == nil {
		if err := r.cpMgr.MarkCompleted(r.cp, job.PostID); err != nil {
			log.WithError(err).Warn("could not save checkpoint")
		}
	}
	return tally
}

func (e *Engine) transferOne(ctx context.Context, r *run, webURL string, att fetcher.Attachment, tally *report.Tally, log logger.Logger) {
	name := storage.FileName(att.URL, att.Name)
	if !e.opts.Filter.Allows(name) {
		log.DebugWithFields("Filtered out", map[string]interface{}{"file": name, "filter": e.opts.Filter.String()})
		tally.AddSkipped(att.URL)
		e.status(r, webURL, name, "skipped")
		return
	}

	dest, ok := r.store.Claim(att.URL, att.Name)
	if !ok {
		owner, _ := r.store.Owner(dest)
		log.WarnWithFields("Destination already taken in this run", map[string]interface{}{
			"file":  dest,
			"url":   att.URL,
			"owner": owner,
		})
		tally.AddSkipped(att.URL)
		e.status(r, webURL, name, "skipped")
		return
	}

	budget := transfer.NewBudget(e.opts.Retries, e.opts.WriteRetries, e.opts.MaxRateLimitWaits)
	out := r.transferer.Transfer(ctx, att.URL, dest, budget, e.opts.Progress.NewTracker(name))
	switch out.Status {
	case transfer.Success:
		tally.AddSuccess(out.Bytes)
	case transfer.Skipped:
		tally.AddSkipped(att.URL)
	default:
		tally.AddFailed(att.URL)
	}
	e.status(r, webURL, name, out.Status.String())
}

func (e *Engine) status(r *run, postURL, file, status string) {
	if r.statusLog == nil {
		return
	}
	if err := r.statusLog.Record(postURL, file, status); err != nil {
		r.log.WithError(err).Debug("status log write failed")
	}
}

func (e *Engine) checkFreeSpace(dir string, log logger.Logger) {
	if e.opts.MinFreeSpaceMB == 0 {
		return
	}
	free, err := e.freeSpace(dir)
	if err != nil {
		log.WithError(err).Debug("cannot determine free disk space")
		return
	}
	if limit := e.opts.MinFreeSpaceMB * 1024 * 1024; free < limit {
		log.WarnWithFields("Low disk space", map[string]interface{}{
			"free_mb": free / 1024 / 1024,
			"min_mb":  e.opts.MinFreeSpaceMB,
			"path":    dir,
		})
	}
}

// String describes opts for the startup banner.
func (o Options) String() string {
	return fmt.Sprintf("concurrency=%d retries=%d filter=%s output=%q",
		o.Concurrency, o.Retries, o.Filter, o.OutputDir)
}
