package sdk

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func newStepID() string {
	return uuid.New().String()
}

// Step is the handle for one instrumented unit of work. It is created
// open and mutated exactly once, at End/EndWithError; the closing call is
// idempotent and closing out of order is always safe (see Run.endStep).
type Step struct {
	run *Run

	noop bool

	id        string
	parentID  string
	typ       trace.StepType
	name      string
	seq       int64
	startedAt time.Time

	mu        sync.Mutex
	reasoning map[string]any
}

// ID returns the step identifier ("" for a no-op step).
func (s *Step) ID() string {
	return s.id
}

// Sequence returns the step's run-scoped sequence number.
func (s *Step) Sequence() int64 {
	return s.seq
}

// AddReasoning attaches one key of free-form reasoning to the step. The
// payload is carried on the step-end event, bounded by the configured
// detail level.
func (s *Step) AddReasoning(key string, value any) {
	if s.noop {
		return
	}
	s.mu.Lock()
	if s.reasoning == nil {
		s.reasoning = map[string]any{}
	}
	s.reasoning[key] = value
	s.mu.Unlock()
}

// Explain attaches a free-form explanation string under the
// "explanation" key.
func (s *Step) Explain(text string) {
	s.AddReasoning("explanation", text)
}

// End closes the step as completed with the given output.
func (s *Step) End(output any) {
	if s.noop {
		return
	}
	s.run.endStep(s, trace.StatusCompleted, output, "")
}

// EndWithError closes the step as failed.
func (s *Step) EndWithError(err error) {
	if s.noop {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.run.endStep(s, trace.StatusFailed, nil, msg)
}

// takeReasoning hands the reasoning payload to the encoder. Structure is
// preserved; only the detail level's size bound is enforced.
func (s *Step) takeReasoning() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reasoning == nil {
		return nil
	}
	out := BoundReasoning(s.reasoning, s.run.client.cfg.DefaultDetail)
	s.reasoning = nil
	return out
}
