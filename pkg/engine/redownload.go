package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"postgrab/pkg/address"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/fetcher"
	"postgrab/pkg/report"
	"postgrab/pkg/storage"
	"postgrab/pkg/transfer"
)

// Redownload works through a URL list such as the one written by FailedLog.
// Lines starting with '#' are done and skipped. A post address is fetched and
// all its files transferred; any other URL is transferred as a file. After
// each line that fully succeeds the list is rewritten with that line
// commented out, so an interrupted retry picks up where it stopped.
func (e *Engine) Redownload(ctx context.Context, listPath string, suffixes []string) (*report.Report, error) {
	data, err := readList(e, listPath)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(data, "\n")

	outDir := e.opts.OutputDir
	if outDir == "" {
		outDir = "."
	}
	store, err := storage.NewManager(e.opts.Fs, outDir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeWrite, err, outDir)
	}

	r := &run{id: uuid.NewString(), store: store}
	r.log = e.log.WithFields(map[string]interface{}{"run_id": r.id, "list": listPath})
	r.transferer = transfer.New(e.client, e.opts.Fs, e.opts.Transfer)
	e.checkFreeSpace(outDir, r.log)

	pending := 0
	for _, line := range lines {
		if l := strings.TrimSpace(line); l != "" && !strings.HasPrefix(l, "#") {
			pending++
		}
	}
	r.log.InfoWithFields("Retrying list", map[string]interface{}{"urls": pending, "output": outDir})

	var rep report.Report
	done := 0
	for i, line := range lines {
		raw := strings.TrimSpace(line)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if ctx.Err() != nil {
			return &rep, ctx.Err()
		}
		done++
		e.opts.Progress.PostStarted(raw, pending-done, pending)

		var tally report.Tally
		if addr, err := address.ParseWithSuffixes(raw, suffixes); err == nil && addr.Mode == address.SinglePost {
			e.redownloadPost(ctx, r, addr, &tally)
		} else {
			e.transferOne(ctx, r, raw, fetcher.Attachment{URL: raw}, &tally, r.log)
		}
		rep.Merge(tally)

		if len(tally.Failed) > 0 || ctx.Err() != nil {
			r.log.WarnWithFields("Retry failed", map[string]interface{}{"url": raw})
			continue
		}
		lines[i] = "#" + line
		if err := storage.WriteFileAtomic(e.opts.Fs, listPath, []byte(strings.Join(lines, "\n"))); err != nil {
			return &rep, fmt.Errorf("failed to update %s: %w", listPath, err)
		}
	}

	r.log.InfoWithFields("Retry finished", map[string]interface{}{
		"success": rep.SuccessCount,
		"failed":  len(rep.Failed),
	})
	return &rep, nil
}

func readList(e *Engine, path string) (string, error) {
	b, err := afero.ReadFile(e.opts.Fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read url list: %w", err)
	}
	return string(b), nil
}

func (e *Engine) redownloadPost(ctx context.Context, r *run, addr address.Address, tally *report.Tally) {
	postURL := addr.BaseURL
	webURL := address.WebURL(postURL)
	f := fetcher.New(e.client, fetcher.Options{
		Domain:          addr.Domain,
		ParseRetries:    e.opts.Crawler.ParseRetries,
		ParseRetryDelay: e.opts.Crawler.ParseRetryDelay,
		Logger:          e.opts.Logger,
	})
	res, err := f.Fetch(ctx, postURL)
	if err != nil {
		tally.AddFailed(webURL)
		return
	}
	for _, ref := range res.Skipped {
		tally.AddSkipped(ref)
	}
	for _, att := range res.Attachments {
		if ctx.Err() != nil {
			return
		}
		e.transferOne(ctx, r, webURL, att, tally, r.log)
	}
}
