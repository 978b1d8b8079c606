package trace

import "time"

// EventType identifies the type of ingest event.
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventRunEnd    EventType = "run_end"
	EventStepStart EventType = "step_start"
	EventStepEnd   EventType = "step_end"
)

// Event is the wire form of a single run/step lifecycle transition.
// A batch of events is the body of POST /v1/ingest.
//
// Fields are a union across event types; the populated subset depends on
// Type. ID is the run ID for run events and the step ID for step events.
type Event struct {
	Type EventType `json:"event_type"`
	ID   string    `json:"id"`

	// Run events.
	PipelineName string         `json:"pipeline_name,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// Step events.
	RunID         string         `json:"run_id,omitempty"`
	ParentID      string         `json:"parent_id,omitempty"`
	StepType      StepType       `json:"step_type,omitempty"`
	Name          string         `json:"name,omitempty"`
	Sequence      int64          `json:"sequence,omitempty"`
	InputSummary  map[string]any `json:"input_summary,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	Reasoning     map[string]any `json:"reasoning,omitempty"`

	// End events.
	Status       Status     `json:"status,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Orphaned     bool       `json:"orphaned,omitempty"`

	// Start events.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// EventResult reports the outcome of processing one ingest event.
type EventResult struct {
	ID      string    `json:"id"`
	Type    EventType `json:"event_type"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// IngestResponse summarizes a processed event batch. The ingest endpoint
// always answers 200 with these counts so the SDK never retries on
// partial failure.
type IngestResponse struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []EventResult `json:"results"`
}
