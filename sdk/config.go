package sdk

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// configFileName is the fixed filename searched for when no config file is
// given explicitly. The search starts at the working directory and walks
// each ancestor up to the filesystem root, stopping at the first match.
const configFileName = "xray.yaml"

// Built-in defaults, the lowest configuration layer.
const (
	defaultBufferSize    = 1000
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 100
	defaultHTTPTimeout   = 10 * time.Second
)

// Config is the effective SDK configuration after merging all layers.
// An empty BaseURL disables the SDK entirely: every instrumentation call
// becomes a cheap no-op rather than an error.
type Config struct {
	BaseURL       string
	APIKey        string
	BufferSize    int
	FlushInterval time.Duration
	DefaultDetail trace.DetailLevel
	BatchSize     int
	HTTPTimeout   time.Duration
	Eviction      EvictionPolicy
}

// fileConfig is the YAML file shape. Pointer fields distinguish absent
// options from zero values so a lower layer never masks a higher one.
// flush_interval is in seconds to match the wire/file convention.
type fileConfig struct {
	BaseURL       *string  `yaml:"base_url"`
	APIKey        *string  `yaml:"api_key"`
	BufferSize    *int     `yaml:"buffer_size"`
	FlushInterval *float64 `yaml:"flush_interval"`
	DefaultDetail *string  `yaml:"default_detail"`
}

// resolveConfig merges the four layers, highest priority first:
// explicit options, environment variables, a discovered (or explicitly
// given) YAML file, built-in defaults. Invalid values in any layer fall
// back to the option's default rather than erroring.
func resolveConfig(o *options, logger *slog.Logger) Config {
	cfg := Config{
		BufferSize:    defaultBufferSize,
		FlushInterval: defaultFlushInterval,
		DefaultDetail: trace.DetailSummary,
		BatchSize:     defaultBatchSize,
		HTTPTimeout:   defaultHTTPTimeout,
		Eviction:      DropOldest,
	}

	// Layer 3: config file.
	path := o.configFile
	if path == "" {
		path = discoverConfigFile()
	}
	if path != "" {
		applyConfigFile(&cfg, path, logger)
	}

	// Layer 2: environment.
	applyEnv(&cfg, logger)

	// Layer 1: explicit options.
	if o.baseURL != nil {
		cfg.BaseURL = *o.baseURL
	}
	if o.apiKey != nil {
		cfg.APIKey = *o.apiKey
	}
	if o.bufferSize != nil {
		cfg.BufferSize = *o.bufferSize
	}
	if o.flushInterval != nil {
		cfg.FlushInterval = *o.flushInterval
	}
	if o.detail != nil {
		cfg.DefaultDetail = *o.detail
	}
	if o.eviction != nil {
		cfg.Eviction = *o.eviction
	}

	// Sanity: every numeric option must remain positive after the merge.
	if cfg.BufferSize <= 0 {
		logger.Warn("invalid buffer_size, using default", "value", cfg.BufferSize)
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		logger.Warn("invalid flush_interval, using default", "value", cfg.FlushInterval)
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if !cfg.DefaultDetail.Valid() {
		logger.Warn("invalid default_detail, using summary", "value", string(cfg.DefaultDetail))
		cfg.DefaultDetail = trace.DetailSummary
	}

	return cfg
}

// discoverConfigFile searches the working directory and each ancestor for
// the fixed config filename. Returns "" when nothing is found.
func discoverConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, configFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyConfigFile merges file values into cfg. Unreadable or malformed
// files are logged and skipped; configuration problems never surface to
// instrumented code.
func applyConfigFile(cfg *Config, path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read config file", "path", path, "error", err)
		return
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		logger.Warn("failed to parse config file", "path", path, "error", err)
		return
	}

	if fc.BaseURL != nil {
		cfg.BaseURL = *fc.BaseURL
	}
	if fc.APIKey != nil {
		cfg.APIKey = *fc.APIKey
	}
	if fc.BufferSize != nil {
		cfg.BufferSize = *fc.BufferSize
	}
	if fc.FlushInterval != nil {
		cfg.FlushInterval = secondsToDuration(*fc.FlushInterval)
	}
	if fc.DefaultDetail != nil {
		cfg.DefaultDetail = trace.DetailLevel(*fc.DefaultDetail)
	}
}

// applyEnv merges XRAY_* environment variables into cfg.
func applyEnv(cfg *Config, logger *slog.Logger) {
	if v := os.Getenv("XRAY_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("XRAY_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("XRAY_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BufferSize = n
		} else {
			logger.Warn("invalid XRAY_BUFFER_SIZE, ignoring", "value", v)
		}
	}
	if v := os.Getenv("XRAY_FLUSH_INTERVAL"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FlushInterval = secondsToDuration(secs)
		} else {
			logger.Warn("invalid XRAY_FLUSH_INTERVAL, ignoring", "value", v)
		}
	}
	if v := os.Getenv("XRAY_DETAIL"); v != "" {
		cfg.DefaultDetail = trace.DetailLevel(v)
	}
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
