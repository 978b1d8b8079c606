package sdk

import (
	"sync"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// EvictionPolicy selects which record is discarded when the event buffer
// is full.
type EvictionPolicy string

const (
	// DropOldest evicts the oldest buffered record to admit the new one.
	// This favors recency: the most recent activity is usually the one
	// being actively debugged.
	DropOldest EvictionPolicy = "drop_oldest"

	// DropNewest discards the incoming record and keeps the buffer as is.
	DropNewest EvictionPolicy = "drop_newest"
)

// eventBuffer is a bounded FIFO ring of encoded events, shared
// process-wide. Arbitrarily many producers push; exactly one consumer
// (the flusher) drains. Push is a short mutex-guarded O(1) operation and
// Drain is O(batch); neither touches I/O, so instrumented code never
// waits on the network.
type eventBuffer struct {
	mu      sync.Mutex
	events  []trace.Event // fixed length == capacity
	head    int           // index of the oldest buffered event
	count   int
	policy  EvictionPolicy
	dropped uint64
}

func newEventBuffer(capacity int, policy EvictionPolicy) *eventBuffer {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	if policy != DropNewest {
		policy = DropOldest
	}
	return &eventBuffer{
		events: make([]trace.Event, capacity),
		policy: policy,
	}
}

// Push adds an event, evicting per policy when full. Returns true if a
// record was discarded (the incoming one under DropNewest, the oldest
// buffered one under DropOldest).
func (b *eventBuffer) Push(ev trace.Event) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.events) {
		b.dropped++
		if b.policy == DropNewest {
			return true
		}
		// Overwrite the oldest slot to admit the new one.
		b.events[b.head] = ev
		b.head = (b.head + 1) % len(b.events)
		return true
	}

	b.events[(b.head+b.count)%len(b.events)] = ev
	b.count++
	return false
}

// Drain removes and returns up to max events. max <= 0 drains everything.
// The returned slice is a snapshot: concurrent pushes after Drain returns
// are not included and nothing races with the copy.
func (b *eventBuffer) Drain(max int) []trace.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	batch := make([]trace.Event, n)
	for i := range batch {
		idx := (b.head + i) % len(b.events)
		batch[i] = b.events[idx]
		b.events[idx] = trace.Event{} // release payload references
	}
	b.head = (b.head + n) % len(b.events)
	b.count -= n

	return batch
}

// Len returns the number of buffered events.
func (b *eventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the monotonic count of evicted events.
func (b *eventBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
