package sdk

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg := resolveConfig(&options{configFile: filepath.Join(t.TempDir(), "absent.yaml")}, discardLogger())

	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, trace.DetailSummary, cfg.DefaultDetail)
	assert.Equal(t, DropOldest, cfg.Eviction)
}

func TestResolveConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `
base_url: http://xray.internal:8787
api_key: file-key
buffer_size: 50
flush_interval: 2.5
default_detail: full
`)

	cfg := resolveConfig(&options{configFile: path}, discardLogger())

	assert.Equal(t, "http://xray.internal:8787", cfg.BaseURL)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, 50, cfg.BufferSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.FlushInterval)
	assert.Equal(t, trace.DetailFull, cfg.DefaultDetail)
}

func TestResolveConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `
base_url: http://from-file:1
buffer_size: 50
`)
	t.Setenv("XRAY_BASE_URL", "http://from-env:2")
	t.Setenv("XRAY_FLUSH_INTERVAL", "1")

	cfg := resolveConfig(&options{configFile: path}, discardLogger())

	assert.Equal(t, "http://from-env:2", cfg.BaseURL)
	assert.Equal(t, 50, cfg.BufferSize)
	assert.Equal(t, time.Second, cfg.FlushInterval)
}

func TestResolveConfigOptionsOverrideEverything(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `base_url: http://from-file:1`)
	t.Setenv("XRAY_BASE_URL", "http://from-env:2")

	base := "http://from-options:3"
	size := 7
	cfg := resolveConfig(&options{
		configFile: path,
		baseURL:    &base,
		bufferSize: &size,
	}, discardLogger())

	assert.Equal(t, "http://from-options:3", cfg.BaseURL)
	assert.Equal(t, 7, cfg.BufferSize)
}

func TestResolveConfigInvalidValuesFallBack(t *testing.T) {
	size := -5
	interval := -time.Second
	detail := trace.DetailLevel("verbose")
	cfg := resolveConfig(&options{
		configFile:    filepath.Join(t.TempDir(), "absent.yaml"),
		bufferSize:    &size,
		flushInterval: &interval,
		detail:        &detail,
	}, discardLogger())

	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
	assert.Equal(t, defaultFlushInterval, cfg.FlushInterval)
	assert.Equal(t, trace.DetailSummary, cfg.DefaultDetail)
}

func TestResolveConfigMalformedFileIgnored(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "base_url: [broken")

	cfg := resolveConfig(&options{configFile: path}, discardLogger())

	assert.Empty(t, cfg.BaseURL)
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
}

func TestDiscoverConfigFileWalksAncestors(t *testing.T) {
	root := t.TempDir()
	writeConfigFile(t, root, "base_url: http://discovered:1\n")

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	found := discoverConfigFile()
	require.NotEmpty(t, found)

	data, err := os.ReadFile(found)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://discovered:1")
}
