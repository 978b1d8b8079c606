// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default server settings.
const (
	DefaultListenAddr  = ":8787"
	DefaultDatabaseURL = "xray.db"
	DefaultIngestRate  = 100.0
	DefaultIngestBurst = 200
)

// Config holds server configuration. Values load in precedence order:
// defaults, then the optional config file, then XRAY_* environment
// variables.
type Config struct {
	// ListenAddr is the TCP address the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// DatabaseURL is the SQLite database file path.
	DatabaseURL string `yaml:"database_url"`

	// APIKey, when set, requires bearer authentication on API requests.
	APIKey string `yaml:"api_key"`

	// Debug enables debug-level logging. XRAY_DEBUG overrides it.
	Debug bool `yaml:"debug"`

	// IngestRate limits ingest requests per second. Zero disables it.
	IngestRate float64 `yaml:"ingest_rate"`

	// IngestBurst is the token bucket depth for ingest limiting.
	IngestBurst int `yaml:"ingest_burst"`

	// PendingWindow is how long steps wait for their run record before
	// being persisted as orphans.
	PendingWindow time.Duration `yaml:"pending_window"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServerConfig returns a Config with defaults applied.
func DefaultServerConfig() *Config {
	return &Config{
		ListenAddr:      DefaultListenAddr,
		DatabaseURL:     DefaultDatabaseURL,
		IngestRate:      DefaultIngestRate,
		IngestBurst:     DefaultIngestBurst,
		PendingWindow:   30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig loads server configuration from an optional YAML file and
// the environment. A missing file at the default path is not an error; a
// missing file at an explicitly given path is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultServerConfig()

	explicit := path != ""
	if !explicit {
		path = "xrayd.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDatabaseURL
	}

	return cfg, nil
}

// applyEnv overlays XRAY_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("XRAY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("XRAY_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("XRAY_SERVER_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("XRAY_INGEST_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate >= 0 {
			c.IngestRate = rate
		}
	}
}
