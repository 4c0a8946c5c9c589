package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"postgrab/pkg/engine"
	"postgrab/pkg/logger"
	"postgrab/pkg/ui"
)

// defaultRetryBudget is the per-file budget of 'retry' when -r is not given.
// URLs land in a failed list after a normal run gave up on them, so the
// second pass is allowed to be far more patient.
const defaultRetryBudget = 100

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry <file>",
	Short: "Download the URLs of a failed list again",
	Long: `Work through a URL list such as the one written by 'download --log'.

Each line is a post URL or a file URL. A post is fetched again and all of its
files downloaded; any other URL is downloaded as a file. Lines that succeed
are commented out with '#' as soon as they finish, so an interrupted retry
continues where it stopped.`,
	Example: `  postgrab retry failed.txt
  postgrab retry failed.txt -o art -r 20`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	retryCmd.Flags().StringP("out", "o", "", "output directory (default: current directory)")
	retryCmd.Flags().IntP("retry", "r", defaultRetryBudget, "retry budget per file")
	retryCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
}

func runRetry(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("retry") {
		cfg.Download.RetryBudget = defaultRetryBudget
	}
	log := logger.GetLogger()

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = log
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}

	var bar *ui.BarReporter
	if !noProgress && ui.IsTerminal(os.Stdout) {
		bar = ui.NewBarReporter(os.Stdout, args[0])
		opts.Progress = bar
	}

	ui.PrintBanner()
	ui.PrintInfo("List", args[0])
	ui.PrintInfo("Output", outDir)

	start := time.Now()
	rep, runErr := engine.New(newClient(cfg, "", log), opts).Redownload(cmd.Context(), args[0], cfg.HTTP.SiteSuffixes)
	if bar != nil {
		_ = bar.Close()
	}
	ui.PrintReport(ui.Out, rep, outDir, time.Since(start))

	if runErr != nil {
		ui.PrintError("Retry failed", runErr.Error())
		return runErr
	}
	if len(rep.Failed) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d URLs still failing; run 'postgrab retry %s' again later", len(rep.Failed), args[0]))
	}
	return nil
}
