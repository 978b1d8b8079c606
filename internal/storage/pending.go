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

package storage

import (
	"sync"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// pendingEntry is a step waiting for its run record to arrive.
type pendingEntry struct {
	step    *trace.Step
	addedAt time.Time
}

// reconciler is the short-lived holding area for steps that reference a
// run identifier not yet present. It is bounded both by record count and
// by age; the store persists evicted and expired entries as orphans so
// nothing is lost.
type reconciler struct {
	mu     sync.Mutex
	byRun  map[string][]*pendingEntry
	order  []*pendingEntry // insertion order, for count-based eviction
	limit  int
	window time.Duration
}

func newReconciler(limit int, window time.Duration) *reconciler {
	return &reconciler{
		byRun:  make(map[string][]*pendingEntry),
		limit:  limit,
		window: window,
	}
}

// Add holds a step. When the area is at capacity, the oldest entries are
// evicted and returned; the caller persists them as orphans.
func (r *reconciler) Add(step *trace.Step) (evicted []*trace.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.order) >= r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		r.removeFromRun(oldest)
		evicted = append(evicted, oldest.step)
	}

	entry := &pendingEntry{step: step, addedAt: time.Now()}
	r.byRun[step.RunID] = append(r.byRun[step.RunID], entry)
	r.order = append(r.order, entry)

	pendingSteps.Set(float64(len(r.order)))
	return evicted
}

// MergeEnd folds a step-end record into a held step with the same ID, if
// one exists. Returns true when the merge happened; the caller then has
// nothing further to persist for this event.
func (r *reconciler) MergeEnd(end *trace.Step) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.byRun[end.RunID] {
		if entry.step.ID != end.ID {
			continue
		}
		entry.step.Status = end.Status
		entry.step.EndedAt = end.EndedAt
		entry.step.OutputSummary = end.OutputSummary
		entry.step.Reasoning = end.Reasoning
		entry.step.ErrorMessage = end.ErrorMessage
		entry.step.Orphaned = entry.step.Orphaned || end.Orphaned
		return true
	}
	return false
}

// Take removes and returns all steps waiting for the given run.
func (r *reconciler) Take(runID string) []*trace.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.byRun[runID]
	if len(entries) == 0 {
		return nil
	}
	delete(r.byRun, runID)

	steps := make([]*trace.Step, 0, len(entries))
	for _, entry := range entries {
		steps = append(steps, entry.step)
		r.removeFromOrder(entry)
	}

	pendingSteps.Set(float64(len(r.order)))
	return steps
}

// Expired removes and returns entries older than the pending window.
func (r *reconciler) Expired(now time.Time) []*trace.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	var steps []*trace.Step
	cutoff := now.Add(-r.window)
	for len(r.order) > 0 && r.order[0].addedAt.Before(cutoff) {
		entry := r.order[0]
		r.order = r.order[1:]
		r.removeFromRun(entry)
		steps = append(steps, entry.step)
	}

	pendingSteps.Set(float64(len(r.order)))
	return steps
}

// TakeAll removes and returns every held step.
func (r *reconciler) TakeAll() []*trace.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := make([]*trace.Step, 0, len(r.order))
	for _, entry := range r.order {
		steps = append(steps, entry.step)
	}
	r.order = nil
	r.byRun = make(map[string][]*pendingEntry)

	pendingSteps.Set(0)
	return steps
}

// Len returns the number of held steps.
func (r *reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// removeFromRun unlinks an entry from the per-run index.
// Caller holds r.mu.
func (r *reconciler) removeFromRun(target *pendingEntry) {
	entries := r.byRun[target.step.RunID]
	for i, entry := range entries {
		if entry == target {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.byRun, target.step.RunID)
	} else {
		r.byRun[target.step.RunID] = entries
	}
}

// removeFromOrder unlinks an entry from the insertion-order list.
// Caller holds r.mu.
func (r *reconciler) removeFromOrder(target *pendingEntry) {
	for i, entry := range r.order {
		if entry == target {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
