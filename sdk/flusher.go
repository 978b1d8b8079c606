package sdk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// closeTimeout bounds the final flush during shutdown so closing the SDK
// can never hang the host process.
const closeTimeout = 5 * time.Second

// flusher is the single consumer of the event buffer. It drains batches
// when the buffer reaches the batch threshold, on a fixed interval, on
// explicit request, and once (bounded) at shutdown. All transport
// failures are absorbed here: a failed batch is dropped and counted,
// never retried and never re-buffered.
type flusher struct {
	buf       *eventBuffer
	send      func(ctx context.Context, events []trace.Event) error
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	// kick wakes the loop when producers fill the buffer past the batch
	// threshold. Capacity 1: a pending wake-up is enough.
	kick chan struct{}

	stop    chan struct{}
	stopped chan struct{}

	mu             sync.Mutex
	batchesDropped uint64
	eventsSent     uint64
}

func newFlusher(buf *eventBuffer, send func(context.Context, []trace.Event) error, interval time.Duration, batchSize int, logger *slog.Logger) *flusher {
	return &flusher{
		buf:       buf,
		send:      send,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (f *flusher) start() {
	go f.loop()
}

// Kick signals the loop that the buffer crossed the batch threshold.
// Non-blocking; producers never wait on the consumer.
func (f *flusher) Kick() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *flusher) loop() {
	defer close(f.stopped)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.flushAll(context.Background())
		case <-f.kick:
			f.flushAll(context.Background())
		}
	}
}

// flushAll drains the buffer in batch-size chunks until empty, so under
// sustained load events are shipped as fast as they are produced instead
// of being evicted.
func (f *flusher) flushAll(ctx context.Context) {
	for {
		batch := f.buf.Drain(f.batchSize)
		if len(batch) == 0 {
			return
		}
		f.ship(ctx, batch)
	}
}

// ship sends one batch and absorbs any failure.
func (f *flusher) ship(ctx context.Context, batch []trace.Event) {
	if err := f.send(ctx, batch); err != nil {
		f.mu.Lock()
		f.batchesDropped++
		f.mu.Unlock()
		batchesDropped.Inc()
		f.logger.Warn("dropping event batch after transport failure",
			"events", len(batch), "error", err)
		return
	}

	f.mu.Lock()
	f.eventsSent += uint64(len(batch))
	f.mu.Unlock()
	eventsSent.Add(float64(len(batch)))
	f.logger.Debug("flushed event batch", "events", len(batch))
}

// Flush synchronously drains and ships everything currently buffered.
func (f *flusher) Flush(ctx context.Context) {
	f.flushAll(ctx)
}

// Close stops the loop and performs one bounded best-effort final flush.
// Events still unsent when the bound expires are discarded; there is no
// durability guarantee past this point.
func (f *flusher) Close(ctx context.Context) {
	select {
	case <-f.stop:
		// Already closed.
		return
	default:
		close(f.stop)
	}
	<-f.stopped

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, closeTimeout)
		defer cancel()
	}
	f.flushAll(ctx)
}

// Stats returns the flusher's delivery counters.
func (f *flusher) Stats() (sent, dropped uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eventsSent, f.batchesDropped
}
