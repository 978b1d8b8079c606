package sdk

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// Client is the entry point for instrumenting a pipeline. One Client is
// shared process-wide; each concurrent pipeline execution gets its own
// Run handle and the Runs never share mutable state.
//
// Every Client method and every Run/Step method is fail-open: nothing on
// the instrumentation path ever returns an error into, blocks, or panics
// the instrumented application.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// enabled is false when no configuration layer supplied a base URL.
	// A disabled client performs no buffering and no network activity.
	enabled bool

	buf     *eventBuffer
	flusher *flusher

	closed atomic.Bool

	// instrumentation-context drops: StartStep with no open run, nested
	// StartRun, activity on a closed run.
	contextDrops atomic.Uint64
}

// New creates a Client by resolving configuration from explicit options,
// XRAY_* environment variables, a discovered xray.yaml, and built-in
// defaults, in that priority order. When no layer provides a base URL the
// returned Client is disabled: usable, but a no-op.
func New(opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := resolveConfig(o, logger)

	c := &Client{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.BaseURL == "" {
		logger.Debug("xray disabled: no base_url configured")
		return c, nil
	}

	t, err := newTransport(cfg, o.httpClient)
	if err != nil {
		return nil, err
	}

	c.enabled = true
	c.buf = newEventBuffer(cfg.BufferSize, cfg.Eviction)
	c.flusher = newFlusher(c.buf, t.Send, cfg.FlushInterval, cfg.BatchSize, logger)
	c.flusher.start()

	logger.Debug("xray enabled",
		"base_url", cfg.BaseURL,
		"buffer_size", cfg.BufferSize,
		"flush_interval", cfg.FlushInterval,
		"detail", string(cfg.DefaultDetail))

	return c, nil
}

// Enabled reports whether the client ships telemetry.
func (c *Client) Enabled() bool {
	return c.enabled && !c.closed.Load()
}

// Config returns the resolved effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// StartRun opens a run for one pipeline execution and returns a context
// carrying it. Nesting runs is disallowed: if ctx already carries a run,
// a no-op Run is returned and a diagnostics counter incremented; the
// caller is never given an error.
func (c *Client) StartRun(ctx context.Context, pipeline string, metadata map[string]any) (context.Context, *Run) {
	if !c.Enabled() {
		return ctx, &Run{client: c, noop: true}
	}

	if _, ok := RunFromContext(ctx); ok {
		c.contextDrops.Add(1)
		eventsDropped.WithLabelValues("nested_run").Inc()
		c.logger.Debug("ignoring nested StartRun", "pipeline", pipeline)
		return ctx, &Run{client: c, noop: true}
	}

	now := time.Now().UTC()
	run := &Run{
		client:    c,
		id:        uuid.New().String(),
		pipeline:  pipeline,
		startedAt: now,
	}

	c.enqueue(trace.Event{
		Type:         trace.EventRunStart,
		ID:           run.id,
		PipelineName: pipeline,
		Metadata:     metadata,
		Status:       trace.StatusRunning,
		StartedAt:    &now,
	})

	return ContextWithRun(ctx, run), run
}

// Flush synchronously drains and ships everything currently buffered.
// Transport failures are absorbed; Flush never returns an error.
func (c *Client) Flush(ctx context.Context) {
	if c.enabled {
		c.flusher.Flush(ctx)
	}
}

// Close stops the background flusher after one bounded best-effort final
// flush. Safe to call more than once. After Close every instrumentation
// call is a no-op.
func (c *Client) Close(ctx context.Context) {
	if c.closed.Swap(true) {
		return
	}
	if c.enabled {
		c.flusher.Close(ctx)
	}
}

// Stats reports the client's diagnostics counters.
type Stats struct {
	// EventsDropped counts records evicted on buffer overflow.
	EventsDropped uint64
	// BatchesDropped counts batches discarded after transport failure.
	BatchesDropped uint64
	// EventsSent counts records delivered to the API.
	EventsSent uint64
	// ContextDrops counts instrumentation calls ignored because no run
	// was active, a run was nested, or the run had closed.
	ContextDrops uint64
}

// Stats returns current diagnostics counters.
func (c *Client) Stats() Stats {
	s := Stats{ContextDrops: c.contextDrops.Load()}
	if c.enabled {
		s.EventsDropped = c.buf.Dropped()
		s.EventsSent, s.BatchesDropped = c.flusher.Stats()
	}
	return s
}

// BufferLen returns the number of events waiting to be flushed.
func (c *Client) BufferLen() int {
	if !c.enabled {
		return 0
	}
	return c.buf.Len()
}

// enqueue pushes one encoded event. O(1), never blocks on I/O.
func (c *Client) enqueue(ev trace.Event) {
	if !c.Enabled() {
		return
	}
	if c.buf.Push(ev) {
		eventsDropped.WithLabelValues("buffer_full").Inc()
	}
	if c.buf.Len() >= c.cfg.BatchSize {
		c.flusher.Kick()
	}
}

// dropContext records an instrumentation-context error, which is always
// recovered locally and never surfaced to caller code.
func (c *Client) dropContext(reason string) {
	c.contextDrops.Add(1)
	eventsDropped.WithLabelValues(reason).Inc()
}
