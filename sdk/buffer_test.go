package sdk

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func makeEvents(n int) []trace.Event {
	events := make([]trace.Event, n)
	for i := range events {
		events[i] = trace.Event{Type: trace.EventStepStart, ID: fmt.Sprintf("step-%d", i)}
	}
	return events
}

func TestBufferPushDrain(t *testing.T) {
	buf := newEventBuffer(10, DropOldest)

	for _, ev := range makeEvents(3) {
		assert.False(t, buf.Push(ev))
	}
	assert.Equal(t, 3, buf.Len())

	batch := buf.Drain(0)
	require.Len(t, batch, 3)
	assert.Equal(t, "step-0", batch[0].ID)
	assert.Equal(t, "step-2", batch[2].ID)
	assert.Equal(t, 0, buf.Len())
	assert.Nil(t, buf.Drain(0))
}

func TestBufferDrainBatchLimit(t *testing.T) {
	buf := newEventBuffer(10, DropOldest)
	for _, ev := range makeEvents(5) {
		buf.Push(ev)
	}

	batch := buf.Drain(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "step-0", batch[0].ID)

	// Remaining events keep their order.
	batch = buf.Drain(0)
	require.Len(t, batch, 3)
	assert.Equal(t, "step-2", batch[0].ID)
}

func TestBufferDropOldest(t *testing.T) {
	buf := newEventBuffer(3, DropOldest)
	for _, ev := range makeEvents(3) {
		buf.Push(ev)
	}

	dropped := buf.Push(trace.Event{ID: "step-3"})
	assert.True(t, dropped)
	assert.Equal(t, uint64(1), buf.Dropped())
	assert.Equal(t, 3, buf.Len())

	batch := buf.Drain(0)
	require.Len(t, batch, 3)
	// Oldest evicted, newest admitted.
	assert.Equal(t, "step-1", batch[0].ID)
	assert.Equal(t, "step-3", batch[2].ID)
}

func TestBufferWrapsAroundCapacity(t *testing.T) {
	buf := newEventBuffer(4, DropOldest)

	// Interleave pushes and drains so the ring indices cross the end of
	// the backing array several times.
	next := 0
	push := func(n int) {
		for range n {
			buf.Push(trace.Event{ID: fmt.Sprintf("step-%d", next)})
			next++
		}
	}

	push(3)
	batch := buf.Drain(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "step-0", batch[0].ID)

	push(4) // fills past the array boundary, one eviction
	assert.Equal(t, uint64(1), buf.Dropped())
	assert.Equal(t, 4, buf.Len())

	batch = buf.Drain(0)
	require.Len(t, batch, 4)
	assert.Equal(t, "step-3", batch[0].ID)
	assert.Equal(t, "step-6", batch[3].ID)
	assert.Equal(t, 0, buf.Len())
}

func TestBufferDropNewest(t *testing.T) {
	buf := newEventBuffer(3, DropNewest)
	for _, ev := range makeEvents(3) {
		buf.Push(ev)
	}

	dropped := buf.Push(trace.Event{ID: "step-3"})
	assert.True(t, dropped)

	batch := buf.Drain(0)
	require.Len(t, batch, 3)
	// Incoming record discarded, buffer unchanged.
	assert.Equal(t, "step-0", batch[0].ID)
	assert.Equal(t, "step-2", batch[2].ID)
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	buf := newEventBuffer(8, DropOldest)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf.Push(trace.Event{ID: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, buf.Len(), 8)
	// Admitted plus dropped accounts for every push.
	assert.Equal(t, uint64(400-buf.Len()), buf.Dropped())
}
