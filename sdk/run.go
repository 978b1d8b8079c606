package sdk

import (
	"fmt"
	"sync"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// Run is the correlation context for one pipeline execution: the active
// run identifier plus a stack of open steps. Runs are not shared across
// independent concurrent executions, so isolation is structural; the
// internal mutex only guards against accidental misuse, never against
// by-design cross-goroutine sharing.
type Run struct {
	client *Client

	// noop marks a run handle from a disabled client or a disallowed
	// nested StartRun. Every method on a no-op run returns immediately.
	noop bool

	id        string
	pipeline  string
	startedAt time.Time

	mu    sync.Mutex
	stack []*Step // open steps, innermost last
	seq   int64   // next step sequence number
	ended bool
}

// ID returns the run identifier ("" for a no-op run).
func (r *Run) ID() string {
	return r.id
}

// Pipeline returns the pipeline name.
func (r *Run) Pipeline() string {
	return r.pipeline
}

// StartStep opens a step. Its parent is the currently innermost open step
// (none if the stack is empty). Steps started after the run ended are
// dropped with a counter and a no-op step returned.
func (r *Run) StartStep(stepType trace.StepType, name string, input any) *Step {
	if r.noop {
		return &Step{noop: true}
	}

	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		r.client.dropContext("closed_run")
		return &Step{noop: true}
	}

	if !stepType.Valid() {
		stepType = trace.StepCustom
	}

	now := time.Now().UTC()
	step := &Step{
		run:       r,
		id:        newStepID(),
		typ:       stepType,
		name:      name,
		seq:       r.seq,
		startedAt: now,
	}
	if len(r.stack) > 0 {
		step.parentID = r.stack[len(r.stack)-1].id
	}
	r.seq++
	r.stack = append(r.stack, step)
	r.mu.Unlock()

	r.client.enqueue(trace.Event{
		Type:         trace.EventStepStart,
		ID:           step.id,
		RunID:        r.id,
		ParentID:     step.parentID,
		StepType:     stepType,
		Name:         name,
		Sequence:     step.seq,
		Status:       trace.StatusRunning,
		StartedAt:    &now,
		InputSummary: Summarize(input, r.client.cfg.DefaultDetail),
	})

	return step
}

// Step runs fn inside a scoped step: the step is opened before fn and
// guaranteed closed on every exit path, including panics (the panic is
// re-raised after closure). fn's error is returned unchanged; the
// instrumentation adds nothing to it.
func (r *Run) Step(stepType trace.StepType, name string, input any, fn func(step *Step) (output any, err error)) error {
	step := r.StartStep(stepType, name, input)

	defer func() {
		if rec := recover(); rec != nil {
			step.EndWithError(fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
	}()

	output, err := fn(step)
	if err != nil {
		step.EndWithError(err)
		return err
	}
	step.End(output)
	return nil
}

// End closes the run as completed. Any steps still open are force-closed
// first as failed and orphaned, so no step outlives its run.
func (r *Run) End() {
	r.end(trace.StatusCompleted, "")
}

// EndWithError closes the run as failed.
func (r *Run) EndWithError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.end(trace.StatusFailed, msg)
}

func (r *Run) end(status trace.Status, errMsg string) {
	if r.noop {
		return
	}

	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	open := r.stack
	r.stack = nil
	r.mu.Unlock()

	now := time.Now().UTC()

	// Fail closed: force-close remaining steps innermost-first.
	for i := len(open) - 1; i >= 0; i-- {
		r.emitStepEnd(open[i], trace.StatusFailed, now, nil, orphanedMessage, true)
	}

	r.client.enqueue(trace.Event{
		Type:         trace.EventRunEnd,
		ID:           r.id,
		Status:       status,
		EndedAt:      &now,
		ErrorMessage: errMsg,
	})
}

// orphanedMessage marks steps force-closed because their scope was
// abandoned (an error path skipped cleanup, or the run closed first).
const orphanedMessage = "step abandoned by enclosing scope"

// endStep closes the named step. If the caller ended a step other than
// the innermost open one (error paths can skip cleanup), every unclosed
// descendant above it is force-closed as failed/orphaned first, so the
// stack never leaks across runs.
func (r *Run) endStep(s *Step, status trace.Status, output any, errMsg string) {
	r.mu.Lock()

	idx := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Already closed (idempotent End) or force-closed by the run.
		r.mu.Unlock()
		return
	}

	abandoned := r.stack[idx+1:]
	r.stack = r.stack[:idx]
	reasoning := s.takeReasoning()
	r.mu.Unlock()

	now := time.Now().UTC()

	for i := len(abandoned) - 1; i >= 0; i-- {
		r.emitStepEnd(abandoned[i], trace.StatusFailed, now, nil, orphanedMessage, true)
	}

	r.client.enqueue(trace.Event{
		Type:          trace.EventStepEnd,
		ID:            s.id,
		RunID:         r.id,
		Status:        status,
		EndedAt:       &now,
		OutputSummary: Summarize(output, r.client.cfg.DefaultDetail),
		Reasoning:     reasoning,
		ErrorMessage:  errMsg,
	})
}

func (r *Run) emitStepEnd(s *Step, status trace.Status, endedAt time.Time, output map[string]any, errMsg string, orphaned bool) {
	r.client.enqueue(trace.Event{
		Type:          trace.EventStepEnd,
		ID:            s.id,
		RunID:         r.id,
		Status:        status,
		EndedAt:       &endedAt,
		OutputSummary: output,
		Reasoning:     s.takeReasoning(),
		ErrorMessage:  errMsg,
		Orphaned:      orphaned,
	})
}
