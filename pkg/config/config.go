package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/stoewer/go-strcase"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "POSTGRAB_"

// Media filter names accepted by DownloadConfig.MediaFilter.
const (
	MediaFilterNone  = "none"
	MediaFilterVideo = "video"
	MediaFilterImage = "image"
)

// Rate limiter strategies accepted by RateLimitConfig.Strategy.
const (
	StrategyTokenBucket   = "token_bucket"
	StrategySlidingWindow = "sliding_window"
)

// Config holds all configuration options for postgrab
type Config struct {
	Download  DownloadConfig  `yaml:"download" json:"download"`
	Transfer  TransferConfig  `yaml:"transfer" json:"transfer"`
	Crawler   CrawlerConfig   `yaml:"crawler" json:"crawler"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// DownloadConfig controls a run as a whole.
type DownloadConfig struct {
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	RetryBudget int    `yaml:"retry_budget" json:"retry_budget"`
	OutputDir   string `yaml:"output_dir" json:"output_dir"`
	// Page selects a single listing page (0-indexed); negative means all pages.
	Page           int    `yaml:"page" json:"page"`
	MediaFilter    string `yaml:"media_filter" json:"media_filter"`
	Verbose        bool   `yaml:"verbose" json:"verbose"`
	FailedLog      string `yaml:"failed_log" json:"failed_log"`
	Checkpoint     bool   `yaml:"checkpoint" json:"checkpoint"`
	MinFreeSpaceMB uint64 `yaml:"min_free_space_mb" json:"min_free_space_mb"`
}

// TransferConfig holds the delays and budgets of a single file transfer.
type TransferConfig struct {
	RateLimitDelay time.Duration `yaml:"rate_limit_delay" json:"rate_limit_delay"`
	ErrorDelay     time.Duration `yaml:"error_delay" json:"error_delay"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	WriteRetries   int           `yaml:"write_retries" json:"write_retries"`
	// MaxRateLimitWaits caps 429 waits per file; 0 means unbounded.
	MaxRateLimitWaits int `yaml:"max_rate_limit_waits" json:"max_rate_limit_waits"`
}

// CrawlerConfig tunes listing pagination.
type CrawlerConfig struct {
	PageSize        int           `yaml:"page_size" json:"page_size"`
	EmptyThreshold  int           `yaml:"empty_threshold" json:"empty_threshold"`
	Confirmations   int           `yaml:"confirmations" json:"confirmations"`
	ParseRetries    int           `yaml:"parse_retries" json:"parse_retries"`
	ParseRetryDelay time.Duration `yaml:"parse_retry_delay" json:"parse_retry_delay"`
}

// HTTPConfig holds transport settings shared by every request.
type HTTPConfig struct {
	// Timeout bounds file transfers; 0 disables it so large files can stream.
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" json:"metadata_timeout"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	Accept          string        `yaml:"accept" json:"accept"`
	SiteSuffixes    []string      `yaml:"site_suffixes" json:"site_suffixes"`
}

// RateLimitConfig holds rate limiting configuration for API requests
type RateLimitConfig struct {
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	Strategy          string `yaml:"strategy" json:"strategy"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			Concurrency:    8,
			RetryBudget:    3,
			Page:           -1,
			MediaFilter:    MediaFilterNone,
			MinFreeSpaceMB: 512,
		},
		Transfer: TransferConfig{
			RateLimitDelay: 10 * time.Second,
			ErrorDelay:     2 * time.Second,
			ReconnectDelay: 1 * time.Second,
			WriteRetries:   3,
		},
		Crawler: CrawlerConfig{
			PageSize:        50,
			EmptyThreshold:  10,
			Confirmations:   3,
			ParseRetryDelay: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			MetadataTimeout: 30 * time.Second,
			UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
			Accept:          "text/css",
			SiteSuffixes:    []string{".su"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Strategy:          StrategyTokenBucket,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// envBinding ties one environment variable to a setter.
type envBinding struct {
	name string
	set  func(c *Config, raw string) error
}

var envBindings = []envBinding{
	{"CONCURRENCY", func(c *Config, raw string) (err error) {
		c.Download.Concurrency, err = cast.ToIntE(raw)
		return
	}},
	{"RETRY_BUDGET", func(c *Config, raw string) (err error) {
		c.Download.RetryBudget, err = cast.ToIntE(raw)
		return
	}},
	{"OUTPUT_DIR", func(c *Config, raw string) error {
		c.Download.OutputDir = raw
		return nil
	}},
	{"MEDIA_FILTER", func(c *Config, raw string) error {
		c.Download.MediaFilter = strings.ToLower(raw)
		return nil
	}},
	{"VERBOSE", func(c *Config, raw string) (err error) {
		c.Download.Verbose, err = cast.ToBoolE(raw)
		return
	}},
	{"FAILED_LOG", func(c *Config, raw string) error {
		c.Download.FailedLog = raw
		return nil
	}},
	{"CHECKPOINT", func(c *Config, raw string) (err error) {
		c.Download.Checkpoint, err = cast.ToBoolE(raw)
		return
	}},
	{"RATE_LIMIT_DELAY", func(c *Config, raw string) (err error) {
		c.Transfer.RateLimitDelay, err = cast.ToDurationE(raw)
		return
	}},
	{"MAX_RATE_LIMIT_WAITS", func(c *Config, raw string) (err error) {
		c.Transfer.MaxRateLimitWaits, err = cast.ToIntE(raw)
		return
	}},
	{"PARSE_RETRIES", func(c *Config, raw string) (err error) {
		c.Crawler.ParseRetries, err = cast.ToIntE(raw)
		return
	}},
	{"USER_AGENT", func(c *Config, raw string) error {
		c.HTTP.UserAgent = raw
		return nil
	}},
	{"REQUESTS_PER_MINUTE", func(c *Config, raw string) (err error) {
		c.RateLimit.RequestsPerMinute, err = cast.ToIntE(raw)
		return
	}},
	{"LOG_LEVEL", func(c *Config, raw string) error {
		c.Logging.Level = raw
		return nil
	}},
	{"LOG_FILE", func(c *Config, raw string) error {
		c.Logging.File = raw
		return nil
	}},
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error
	for _, b := range envBindings {
		raw, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || raw == "" {
			continue
		}
		if err := b.set(c, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".postgrab.yaml",
		".postgrab.yml",
		filepath.Join(home, ".config", "postgrab", "config.yaml"),
		filepath.Join(home, ".config", "postgrab", "config.yml"),
		filepath.Join(home, ".postgrab.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Download.RetryBudget < 0 {
		errs = append(errs, errors.New("retry budget cannot be negative"))
	}
	switch c.Download.MediaFilter {
	case MediaFilterNone, MediaFilterVideo, MediaFilterImage:
	default:
		errs = append(errs, fmt.Errorf("invalid media filter %q", c.Download.MediaFilter))
	}

	if c.Transfer.RateLimitDelay < 0 || c.Transfer.ErrorDelay < 0 || c.Transfer.ReconnectDelay < 0 {
		errs = append(errs, errors.New("transfer delays cannot be negative"))
	}
	if c.Transfer.WriteRetries < 0 {
		errs = append(errs, errors.New("write retries cannot be negative"))
	}
	if c.Transfer.MaxRateLimitWaits < 0 {
		errs = append(errs, errors.New("max rate limit waits cannot be negative"))
	}

	if c.Crawler.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Crawler.Confirmations <= 0 {
		errs = append(errs, errors.New("confirmations must be positive"))
	}
	if c.Crawler.ParseRetries < 0 {
		errs = append(errs, errors.New("parse retries cannot be negative"))
	}

	if len(c.HTTP.SiteSuffixes) == 0 {
		errs = append(errs, errors.New("at least one site suffix is required"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	switch c.RateLimit.Strategy {
	case StrategyTokenBucket, StrategySlidingWindow:
	default:
		errs = append(errs, fmt.Errorf("invalid rate limit strategy %q", c.RateLimit.Strategy))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys may be written in any case style ("retry-budget", "retryBudget");
// they are normalized to snake case before lookup. Nil and zero values are
// treated as unset.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	for key, value := range flags {
		if value == nil {
			continue
		}
		switch strcase.SnakeCase(key) {
		case "out", "output", "output_dir":
			if s := cast.ToString(value); s != "" {
				c.Download.OutputDir = s
			}
		case "task", "concurrency":
			if n := cast.ToInt(value); n > 0 {
				c.Download.Concurrency = n
			}
		case "retry", "retry_budget":
			if n, err := cast.ToIntE(value); err == nil && n >= 0 {
				c.Download.RetryBudget = n
			}
		case "page":
			if n, err := cast.ToIntE(value); err == nil {
				c.Download.Page = n
			}
		case "video_only":
			if cast.ToBool(value) {
				c.Download.MediaFilter = MediaFilterVideo
			}
		case "image_only":
			if cast.ToBool(value) {
				c.Download.MediaFilter = MediaFilterImage
			}
		case "verbose":
			if cast.ToBool(value) {
				c.Download.Verbose = true
			}
		case "log", "failed_log":
			if s := cast.ToString(value); s != "" {
				c.Download.FailedLog = s
			}
		case "resume", "checkpoint":
			if cast.ToBool(value) {
				c.Download.Checkpoint = true
			}
		case "log_level":
			if s := cast.ToString(value); s != "" {
				c.Logging.Level = s
			}
		case "log_file":
			if s := cast.ToString(value); s != "" {
				c.Logging.File = s
			}
		}
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".postgrab.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
