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
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "test.db")
	}
	if cfg.SweepInterval == 0 {
		// Keep the background sweeper out of the way; tests drive Sweep.
		cfg.SweepInterval = time.Hour
	}
	store, err := New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string) *trace.Run {
	return &trace.Run{
		ID:           id,
		PipelineName: "categorize",
		Status:       trace.StatusRunning,
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
		Metadata:     map[string]any{"region": "eu"},
	}
}

func testStep(id, runID string, seq int64) *trace.Step {
	return &trace.Step{
		ID:        id,
		RunID:     runID,
		Type:      trace.StepTransform,
		Name:      "extract",
		Status:    trace.StatusCompleted,
		Sequence:  seq,
		StartedAt: time.Now().UTC(),
	}
}

func TestCreateRunIdempotent(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	run := testRun("run-1")
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun replay: %v", err)
	}

	runs, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after replay, got %d", len(runs))
	}
	if runs[0].Metadata["region"] != "eu" {
		t.Errorf("metadata not preserved: %v", runs[0].Metadata)
	}
}

func TestUpdateRunTerminalTransition(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := store.UpdateRun(ctx, "run-1", trace.StatusCompleted, nil, ""); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	// A second transition is tolerated but does not overwrite.
	if err := store.UpdateRun(ctx, "run-1", trace.StatusFailed, nil, "late failure"); err != nil {
		t.Fatalf("UpdateRun replay: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != trace.StatusCompleted {
		t.Errorf("terminal status overwritten: got %s", run.Status)
	}
	if run.EndedAt == nil {
		t.Error("ended_at not set on terminal transition")
	}
}

func TestUpdateRunUnknownRun(t *testing.T) {
	store := newTestStore(t, Config{})

	err := store.UpdateRun(context.Background(), "ghost", trace.StatusCompleted, nil, "")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestCreateStepsBatchIdempotent(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	batch := []*trace.Step{
		testStep("step-1", "run-1", 0),
		testStep("step-2", "run-1", 1),
	}
	if err := store.CreateSteps(ctx, batch); err != nil {
		t.Fatalf("CreateSteps: %v", err)
	}
	if err := store.CreateSteps(ctx, batch); err != nil {
		t.Fatalf("CreateSteps replay: %v", err)
	}

	steps, err := store.ListSteps(ctx, StepFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps after replay, got %d", len(steps))
	}
}

func TestStepBeforeRunIsHeldThenAttached(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	// Step arrives first: held, not visible, not an error.
	if err := store.ApplyStepStart(ctx, testStep("step-1", "run-1", 0)); err != nil {
		t.Fatalf("ApplyStepStart: %v", err)
	}
	if got := store.PendingLen(); got != 1 {
		t.Fatalf("expected 1 pending step, got %d", got)
	}

	steps, err := store.ListSteps(ctx, StepFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 0 {
		t.Fatalf("held step should not be queryable, got %d", len(steps))
	}

	// Run arrives: step attaches.
	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if got := store.PendingLen(); got != 0 {
		t.Errorf("pending not drained after run arrival: %d", got)
	}

	steps, err = store.ListSteps(ctx, StepFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || steps[0].Orphaned {
		t.Fatalf("expected 1 attached non-orphan step, got %+v", steps)
	}
}

func TestEndBeforeStartMergesIntoPending(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	start := testStep("step-1", "run-1", 0)
	start.Status = trace.StatusRunning
	if err := store.ApplyStepStart(ctx, start); err != nil {
		t.Fatalf("ApplyStepStart: %v", err)
	}

	endedAt := time.Now().UTC()
	end := &trace.Step{
		ID:            "step-1",
		RunID:         "run-1",
		Status:        trace.StatusCompleted,
		EndedAt:       &endedAt,
		OutputSummary: map[string]any{"_count": 3},
	}
	if err := store.ApplyStepEnd(ctx, end); err != nil {
		t.Fatalf("ApplyStepEnd: %v", err)
	}

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	steps, err := store.ListSteps(ctx, StepFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].Status != trace.StatusCompleted {
		t.Errorf("end not merged into held start: status %s", steps[0].Status)
	}
	if steps[0].EndedAt == nil {
		t.Error("ended_at lost in merge")
	}
}

func TestExpiredPendingStepPersistedAsOrphan(t *testing.T) {
	store := newTestStore(t, Config{PendingWindow: time.Millisecond})
	ctx := context.Background()

	if err := store.UpsertStep(ctx, testStep("step-1", "never-arrives", 0)); err != nil {
		t.Fatalf("UpsertStep: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	store.Sweep(ctx)

	if got := store.PendingLen(); got != 0 {
		t.Fatalf("expected empty pending area, got %d", got)
	}

	steps, err := store.ListSteps(ctx, StepFilter{RunID: "never-arrives"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || !steps[0].Orphaned {
		t.Fatalf("expected 1 orphan step, got %+v", steps)
	}
}

func TestPendingCountBoundEvictsOldest(t *testing.T) {
	store := newTestStore(t, Config{PendingLimit: 2, PendingWindow: time.Hour})
	ctx := context.Background()

	for i, id := range []string{"step-1", "step-2", "step-3"} {
		if err := store.UpsertStep(ctx, testStep(id, "ghost-run", int64(i))); err != nil {
			t.Fatalf("UpsertStep %s: %v", id, err)
		}
	}

	if got := store.PendingLen(); got != 2 {
		t.Fatalf("pending area exceeded limit: %d", got)
	}

	// The evicted oldest step was persisted as an orphan immediately.
	steps, err := store.ListSteps(ctx, StepFilter{RunID: "ghost-run"})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || steps[0].ID != "step-1" || !steps[0].Orphaned {
		t.Fatalf("expected step-1 persisted as orphan, got %+v", steps)
	}
}

func TestGetRunStepsInSequenceOrder(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	// Insert out of order.
	for _, seq := range []int64{2, 0, 1} {
		step := testStep("step-"+string(rune('a'+seq)), "run-1", seq)
		if err := store.UpsertStep(ctx, step); err != nil {
			t.Fatalf("UpsertStep: %v", err)
		}
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(run.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(run.Steps))
	}
	for i, step := range run.Steps {
		if step.Sequence != int64(i) {
			t.Errorf("steps out of order at %d: sequence %d", i, step.Sequence)
		}
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t, Config{})

	_, err := store.GetRun(context.Background(), "ghost")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsFilters(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	a := testRun("run-a")
	a.PipelineName = "alpha"
	b := testRun("run-b")
	b.PipelineName = "beta"
	for _, run := range []*trace.Run{a, b} {
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}
	if err := store.UpdateRun(ctx, "run-b", trace.StatusFailed, nil, "boom"); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	runs, err := store.ListRuns(ctx, RunFilter{Pipeline: "alpha"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Fatalf("pipeline filter failed: %+v", runs)
	}

	runs, err = store.ListRuns(ctx, RunFilter{Status: trace.StatusFailed})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-b" {
		t.Fatalf("status filter failed: %+v", runs)
	}
	if runs[0].ErrorMessage != "boom" {
		t.Errorf("error message not persisted: %q", runs[0].ErrorMessage)
	}
}

func TestListStepsFilters(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	s1 := testStep("step-1", "run-1", 0)
	s2 := testStep("step-2", "run-1", 1)
	s2.Type = trace.StepFilter
	s2.Status = trace.StatusFailed
	for _, s := range []*trace.Step{s1, s2} {
		if err := store.UpsertStep(ctx, s); err != nil {
			t.Fatalf("UpsertStep: %v", err)
		}
	}

	steps, err := store.ListSteps(ctx, StepFilter{StepType: trace.StepFilter})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || steps[0].ID != "step-2" {
		t.Fatalf("type filter failed: %+v", steps)
	}

	steps, err = store.ListSteps(ctx, StepFilter{Status: trace.StatusFailed})
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 1 || steps[0].ID != "step-2" {
		t.Fatalf("status filter failed: %+v", steps)
	}
}

func TestStepAncestry(t *testing.T) {
	store := newTestStore(t, Config{})
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	root := testStep("root", "run-1", 0)
	mid := testStep("mid", "run-1", 1)
	mid.ParentID = "root"
	leaf := testStep("leaf", "run-1", 2)
	leaf.ParentID = "mid"
	for _, s := range []*trace.Step{root, mid, leaf} {
		if err := store.UpsertStep(ctx, s); err != nil {
			t.Fatalf("UpsertStep: %v", err)
		}
	}

	chain, err := store.StepAncestry(ctx, "run-1", "leaf")
	if err != nil {
		t.Fatalf("StepAncestry: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(chain))
	}
	for i, want := range []string{"leaf", "mid", "root"} {
		if chain[i].ID != want {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i].ID, want)
		}
	}
}
