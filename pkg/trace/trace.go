// Package trace defines the shared data model for pipeline runs and steps.
// Both the client SDK and the server speak these types on the wire.
package trace

import "time"

// Status represents the lifecycle state of a run or step.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepType categorizes a step for filtering and analysis.
type StepType string

const (
	StepTransform StepType = "transform"
	StepRetrieval StepType = "retrieval"
	StepFilter    StepType = "filter"
	StepRank      StepType = "rank"
	StepLLM       StepType = "llm"
	StepCustom    StepType = "custom"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepTransform, StepRetrieval, StepFilter, StepRank, StepLLM, StepCustom:
		return true
	}
	return false
}

// DetailLevel controls how much of a step's payload is retained.
type DetailLevel string

const (
	// DetailSummary keeps counts, keys, and small samples only.
	DetailSummary DetailLevel = "summary"
	// DetailFull keeps the payload as given, capped at a hard byte limit.
	DetailFull DetailLevel = "full"
)

// Valid reports whether d is a known detail level.
func (d DetailLevel) Valid() bool {
	return d == DetailSummary || d == DetailFull
}

// Run represents one end-to-end execution of an instrumented pipeline.
type Run struct {
	ID           string         `json:"id"`
	PipelineName string         `json:"pipeline_name"`
	Status       Status         `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`

	// Steps is populated on single-run query responses only.
	Steps []*Step `json:"steps,omitempty"`
}

// Step represents one instrumented unit of work within a run.
type Step struct {
	ID       string   `json:"id"`
	RunID    string   `json:"run_id"`
	ParentID string   `json:"parent_id,omitempty"`
	Type     StepType `json:"type"`
	Name     string   `json:"name"`
	Status   Status   `json:"status"`

	// Sequence is unique within the run and strictly increases with
	// observed start order. It is the authoritative intra-run ordering
	// when timestamps tie.
	Sequence int64 `json:"sequence"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	InputSummary  map[string]any `json:"input_summary,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	Reasoning     map[string]any `json:"reasoning,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`

	// Orphaned marks a step that was force-closed by the SDK (its scope
	// was abandoned by an error path) or persisted by the server without
	// a reconciled run record.
	Orphaned bool `json:"orphaned,omitempty"`
}

// DurationMS returns the step duration in milliseconds, or 0 while running.
func (s *Step) DurationMS() int64 {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt).Milliseconds()
}
