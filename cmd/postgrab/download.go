package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"postgrab/pkg/address"
	"postgrab/pkg/api"
	"postgrab/pkg/auth"
	"postgrab/pkg/config"
	"postgrab/pkg/engine"
	"postgrab/pkg/logger"
	"postgrab/pkg/ratelimit"
	"postgrab/pkg/ui"
	"postgrab/pkg/ui/tui"
)

var (
	noProgress bool
	useTUI     bool
	notify     bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download every attachment of a creator page or post",
	Long: `Download every attachment of a creator page or a single post.

A creator URL is paged through until the listing runs dry; a post URL
downloads just that post. Files already on disk are resumed or skipped, so
running the same command again is safe.

Failures are listed at the end. Use --log to keep the failed post URLs and
'postgrab retry' to download them again later.`,
	Example: `  # Everything from a creator into ./<creator id>
  postgrab download https://kemono.su/patreon/user/12345

  # Only images, 16 posts at a time, into ./art
  postgrab download https://kemono.su/patreon/user/12345 --image-only -t 16 -o art

  # Only the third listing page, keeping failures for a later retry
  postgrab download https://kemono.su/patreon/user/12345 --page 2 --log failed.txt

  # A single post
  postgrab download https://coomer.su/onlyfans/user/someone/post/987`,
	Aliases: []string{"dl"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(downloadCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("out", "o", "", "output directory (default: last segment of the URL)")
	fs.IntP("task", "t", 8, "number of posts downloaded concurrently")
	fs.IntP("retry", "r", 3, "retry budget per file")
	fs.Int("page", -1, "download only this listing page, counting from 0")
	fs.Bool("video-only", false, "download only videos")
	fs.Bool("image-only", false, "download only images")
	fs.Bool("verbose", false, "write a per-file status log")
	fs.String("log", "", "append failed post URLs to this file")
	fs.Bool("resume", false, "skip posts completed by an earlier run")
	fs.BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	fs.BoolVar(&useTUI, "tui", false, "use the full-screen dashboard")
	fs.BoolVar(&notify, "notify", false, "send a desktop notification when the run ends")
	cmd.MarkFlagsMutuallyExclusive("video-only", "image-only")
	cmd.MarkFlagsMutuallyExclusive("tui", "no-progress")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, useTUI)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	addr, err := address.ParseWithSuffixes(args[0], cfg.HTTP.SiteSuffixes)
	if err != nil {
		ui.PrintError("Invalid URL", err.Error())
		return err
	}
	addr.PageSize = cfg.Crawler.PageSize
	if cfg.Download.Page >= 0 {
		addr = addr.WithPage(address.One(cfg.Download.Page))
	}

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = log

	target := address.WebURL(addr.BaseURL)
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = addr.Creator()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var dash *tui.Dashboard
	var bar *ui.BarReporter
	switch {
	case useTUI:
		dash = tui.New(target)
		dash.Start()
		go func() {
			select {
			case <-dash.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		opts.Progress = dash
	case !noProgress && ui.IsTerminal(os.Stdout):
		bar = ui.NewBarReporter(os.Stdout, outDir)
		opts.Progress = bar
	}

	if dash != nil {
		dash.Log("INFO", "Output: %s", outDir)
		if n, ok := addr.Page.Single(); ok {
			dash.Log("INFO", "Page: %d", n)
		}
	} else {
		ui.PrintBanner()
		ui.PrintInfo("Target", target)
		ui.PrintInfo("Output", outDir)
		if n, ok := addr.Page.Single(); ok {
			ui.PrintInfo("Page", fmt.Sprint(n))
		}
	}

	start := time.Now()
	rep, runErr := engine.New(newClient(cfg, addr.Domain, log), opts).Run(ctx, addr)

	var summary strings.Builder
	ui.PrintReport(&summary, rep, outDir, time.Since(start))
	switch {
	case dash != nil:
		if err := dash.Finish(summary.String()); err != nil {
			log.WithError(err).Warn("dashboard exited with error")
		}
	case bar != nil:
		_ = bar.Close()
	}
	fmt.Fprint(os.Stdout, summary.String())

	if notify {
		ui.NewNotifier().NotifyReport(target, rep, runErr)
	}
	if runErr != nil {
		log.WithError(runErr).Error("Download failed")
		ui.PrintError("Download failed", runErr.Error())
		return runErr
	}
	return nil
}

// newClient builds the API client, attaching the stored session of domain
// when there is one.
func newClient(cfg *config.Config, domain string, log logger.Logger) *api.Client {
	opts := api.Options{
		UserAgent:       cfg.HTTP.UserAgent,
		Accept:          cfg.HTTP.Accept,
		MetadataTimeout: cfg.HTTP.MetadataTimeout,
		TransferTimeout: cfg.HTTP.Timeout,
		MetadataRetries: cfg.Download.RetryBudget,
		Limiter:         ratelimit.New(cfg.RateLimit.Strategy, cfg.RateLimit.RequestsPerMinute, time.Minute),
		Logger:          log,
	}
	if s := lookupSession(domain, log); s != nil {
		opts.Session = s.Value
		if s.UserAgent != "" {
			opts.UserAgent = s.UserAgent
		}
	}
	return api.NewClient(opts)
}

func lookupSession(domain string, log logger.Logger) *auth.Session {
	mgr, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("session stores unavailable")
		return nil
	}
	s, err := mgr.Retrieve(domain)
	if err != nil {
		return nil
	}
	log.WithField("domain", s.Domain).Info("Using stored session")
	return s
}
