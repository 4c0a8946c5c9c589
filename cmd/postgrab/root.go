package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"postgrab/pkg/config"
	"postgrab/pkg/logger"
	"postgrab/pkg/ui"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postgrab [url]",
	Short: "Bulk downloader for creator pages and posts",
	Long: `postgrab downloads every attachment of a creator page or a single post.

Features:
  - Concurrent post workers with a per-file retry budget
  - Resumable transfers: partial files continue with HTTP range requests
  - Patient handling of rate limits (HTTP 429)
  - Image-only or video-only filtering
  - Failed post log that 'postgrab retry' can work through
  - Optional checkpoint to skip posts finished by an earlier run

Running 'postgrab <url>' is the same as 'postgrab download <url>'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runDownload(cmd, args)
	},
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted; run again to resume")
		return 130
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.postgrab.yaml or ~/.config/postgrab/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	addDownloadFlags(rootCmd)

	rootCmd.SetVersionTemplate(`postgrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
}

// changedFlags collects the flags set on the command line. Keys keep their
// flag names; config.MergeCommandLineFlags normalizes them.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flags[f.Name] = f.Value.String()
	})
	return flags
}

// loadConfig loads the configuration and sets up the global logger.
func loadConfig(cmd *cobra.Command, quietConsole bool) (*config.Config, error) {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return nil, err
	}
	if quietConsole && cfg.Logging.File == "" {
		cfg.Logging.Level = "disabled"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		return nil, err
	}
	return cfg, nil
}
