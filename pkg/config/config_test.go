package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, -1, cfg.Download.Page)
	assert.Equal(t, MediaFilterNone, cfg.Download.MediaFilter)
	assert.Equal(t, 10*time.Second, cfg.Transfer.RateLimitDelay)
	assert.Equal(t, 2*time.Second, cfg.Transfer.ErrorDelay)
	assert.Equal(t, 3, cfg.Transfer.WriteRetries)
	assert.Equal(t, 50, cfg.Crawler.PageSize)
	assert.Equal(t, 10, cfg.Crawler.EmptyThreshold)
	assert.Equal(t, 3, cfg.Crawler.Confirmations)
	assert.Equal(t, "text/css", cfg.HTTP.Accept)
	assert.Equal(t, []string{".su"}, cfg.HTTP.SiteSuffixes)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("POSTGRAB_CONCURRENCY", "4")
	t.Setenv("POSTGRAB_OUTPUT_DIR", "/tmp/grab")
	t.Setenv("POSTGRAB_MEDIA_FILTER", "VIDEO")
	t.Setenv("POSTGRAB_VERBOSE", "true")
	t.Setenv("POSTGRAB_RATE_LIMIT_DELAY", "3s")
	t.Setenv("POSTGRAB_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, "/tmp/grab", cfg.Download.OutputDir)
	assert.Equal(t, MediaFilterVideo, cfg.Download.MediaFilter)
	assert.True(t, cfg.Download.Verbose)
	assert.Equal(t, 3*time.Second, cfg.Transfer.RateLimitDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValue(t *testing.T) {
	t.Setenv("POSTGRAB_CONCURRENCY", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRAB_CONCURRENCY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }, "concurrency must be positive"},
		{"negative retry budget", func(c *Config) { c.Download.RetryBudget = -1 }, "retry budget"},
		{"unknown filter", func(c *Config) { c.Download.MediaFilter = "audio" }, "invalid media filter"},
		{"no suffixes", func(c *Config) { c.HTTP.SiteSuffixes = nil }, "site suffix"},
		{"bad strategy", func(c *Config) { c.RateLimit.Strategy = "leaky" }, "rate limit strategy"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Download.Concurrency = 0
	cfg.Crawler.PageSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "page size")
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Download.Concurrency = 2
	cfg.Transfer.ReconnectDelay = 1500 * time.Millisecond
	cfg.HTTP.SiteSuffixes = []string{".su", ".party"}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 2, loaded.Download.Concurrency)
	assert.Equal(t, 1500*time.Millisecond, loaded.Transfer.ReconnectDelay)
	assert.Equal(t, []string{".su", ".party"}, loaded.HTTP.SiteSuffixes)
}

func TestLoadFromFileParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "transfer:\n  rate_limit_delay: 30s\n  error_delay: 500ms\ncrawler:\n  parse_retries: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, 30*time.Second, cfg.Transfer.RateLimitDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Transfer.ErrorDelay)
	assert.Equal(t, 2, cfg.Crawler.ParseRetries)
	assert.Equal(t, 8, cfg.Download.Concurrency, "unset keys keep defaults")
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download: [unclosed"), 0644))
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"out":        "./creator",
		"task":       16,
		"retry":      "5",
		"page":       2,
		"video-only": true,
		"verbose":    true,
		"log":        "failed.txt",
		"resume":     true,
		"logLevel":   "warn",
		"unknown":    "ignored",
		"log-file":   nil,
	})

	assert.Equal(t, "./creator", cfg.Download.OutputDir)
	assert.Equal(t, 16, cfg.Download.Concurrency)
	assert.Equal(t, 5, cfg.Download.RetryBudget)
	assert.Equal(t, 2, cfg.Download.Page)
	assert.Equal(t, MediaFilterVideo, cfg.Download.MediaFilter)
	assert.True(t, cfg.Download.Verbose)
	assert.Equal(t, "failed.txt", cfg.Download.FailedLog)
	assert.True(t, cfg.Download.Checkpoint)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
}

func TestMergeCommandLineFlagsIgnoresZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"out":        "",
		"task":       0,
		"image-only": false,
	})

	assert.Empty(t, cfg.Download.OutputDir)
	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, MediaFilterNone, cfg.Download.MediaFilter)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  concurrency: 2\n  retry_budget: 7\n"), 0644))
	t.Setenv("POSTGRAB_CONCURRENCY", "3")
	t.Setenv("HOME", dir)

	cfg, err := Load(path, map[string]interface{}{"task": 5})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Download.Concurrency, "flag beats env and file")
	assert.Equal(t, 7, cfg.Download.RetryBudget, "file beats defaults")

	cfg, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Download.Concurrency, "env beats file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit:\n  strategy: leaky\n"), 0644))
	t.Setenv("HOME", t.TempDir())

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
