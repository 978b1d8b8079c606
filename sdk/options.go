package sdk

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// Option is a functional option for Client construction. Options are the
// highest-priority configuration layer: a value set here wins over the
// environment, any discovered config file, and the built-in defaults.
type Option func(*options)

// options collects explicit overrides. Pointer fields distinguish
// "not set" from zero values.
type options struct {
	baseURL       *string
	apiKey        *string
	bufferSize    *int
	flushInterval *time.Duration
	detail        *trace.DetailLevel
	eviction      *EvictionPolicy
	configFile    string
	logger        *slog.Logger
	httpClient    *http.Client
}

// WithBaseURL sets the telemetry endpoint. Without a base URL from any
// configuration layer the SDK is disabled and every call is a no-op.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = &url }
}

// WithAPIKey sets the bearer credential attached to every ingest call.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = &key }
}

// WithBufferSize sets the event buffer capacity (default 1000).
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = &n }
}

// WithFlushInterval sets the background flush interval (default 5s).
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.flushInterval = &d }
}

// WithDetail sets the default payload detail level (default summary).
func WithDetail(d trace.DetailLevel) Option {
	return func(o *options) { o.detail = &d }
}

// WithEvictionPolicy selects which record is discarded on buffer overflow
// (default DropOldest).
func WithEvictionPolicy(p EvictionPolicy) Option {
	return func(o *options) { o.eviction = &p }
}

// WithConfigFile loads configuration from the given YAML file instead of
// searching ancestor directories for xray.yaml.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithLogger sets the logger used for SDK diagnostics. Defaults to
// slog.Default(). The SDK only ever logs; it never returns errors into
// instrumented code.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the transport's HTTP client. Intended for tests;
// production callers get the factory-built client with sane TLS, pooling,
// and timeout defaults.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}
