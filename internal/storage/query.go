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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// ErrRunNotFound is returned when a referenced run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Pagination limits.
const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// RunFilter contains filters for run queries.
type RunFilter struct {
	Pipeline string
	Status   trace.Status
	Limit    int
	Offset   int
}

// StepFilter contains filters for step queries.
type StepFilter struct {
	RunID    string
	StepType trace.StepType
	Status   trace.Status
	Limit    int
	Offset   int
}

// ListRuns lists runs matching the filter, newest first.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*trace.Run, error) {
	query := `
		SELECT id, pipeline_name, status, started_at, ended_at, metadata, error_message
		FROM runs WHERE 1=1
	`
	args := []any{}

	if filter.Pipeline != "" {
		query += " AND pipeline_name = ?"
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*trace.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun retrieves one run with its steps in sequence order.
func (s *Store) GetRun(ctx context.Context, id string) (*trace.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline_name, status, started_at, ended_at, metadata, error_message
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	steps, err := s.ListSteps(ctx, StepFilter{RunID: id, Limit: maxPageLimit})
	if err != nil {
		return nil, err
	}
	run.Steps = steps

	return run, nil
}

// ListSteps lists steps matching the filter in run/sequence order.
func (s *Store) ListSteps(ctx context.Context, filter StepFilter) ([]*trace.Step, error) {
	query := `
		SELECT id, run_id, parent_id, type, name, status, sequence, started_at, ended_at,
			input_summary, output_summary, reasoning, error_message, orphaned
		FROM steps WHERE 1=1
	`
	args := []any{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.StepType != "" {
		query += " AND type = ?"
		args = append(args, filter.StepType)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY run_id, sequence ASC LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*trace.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// StepAncestry resolves a step's ancestry chain by walking parent
// pointers, innermost first. Used for trace reconstruction; there are no
// other joins.
func (s *Store) StepAncestry(ctx context.Context, runID, stepID string) ([]*trace.Step, error) {
	steps, err := s.ListSteps(ctx, StepFilter{RunID: runID, Limit: maxPageLimit})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*trace.Step, len(steps))
	for _, step := range steps {
		byID[step.ID] = step
	}

	var chain []*trace.Step
	current, ok := byID[stepID]
	if !ok {
		return nil, fmt.Errorf("step not found: %s", stepID)
	}
	for current != nil {
		chain = append(chain, current)
		if current.ParentID == "" {
			break
		}
		next, ok := byID[current.ParentID]
		if !ok {
			// Parent lost (dropped batch); the chain ends here.
			break
		}
		// Parent pointers form a forest by construction, but a corrupted
		// row must not loop us forever.
		if len(chain) > len(steps) {
			return nil, fmt.Errorf("ancestry cycle detected for step %s", stepID)
		}
		current = next
	}

	return chain, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*trace.Run, error) {
	var run trace.Run
	var startedAt int64
	var endedAt *int64
	var metadataJSON, errMsg *string

	err := row.Scan(&run.ID, &run.PipelineName, &run.Status, &startedAt, &endedAt, &metadataJSON, &errMsg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = time.Unix(0, startedAt).UTC()
	if endedAt != nil {
		t := time.Unix(0, *endedAt).UTC()
		run.EndedAt = &t
	}
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	if metadataJSON != nil && *metadataJSON != "" {
		if err := json.Unmarshal([]byte(*metadataJSON), &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &run, nil
}

func scanStep(row scanner) (*trace.Step, error) {
	var step trace.Step
	var parentID, inputJSON, outputJSON, reasoningJSON, errMsg *string
	var startedAt int64
	var endedAt *int64

	err := row.Scan(&step.ID, &step.RunID, &parentID, &step.Type, &step.Name, &step.Status,
		&step.Sequence, &startedAt, &endedAt, &inputJSON, &outputJSON, &reasoningJSON,
		&errMsg, &step.Orphaned)
	if err != nil {
		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if parentID != nil {
		step.ParentID = *parentID
	}
	step.StartedAt = time.Unix(0, startedAt).UTC()
	if endedAt != nil {
		t := time.Unix(0, *endedAt).UTC()
		step.EndedAt = &t
	}
	if errMsg != nil {
		step.ErrorMessage = *errMsg
	}

	for _, pair := range []struct {
		src *string
		dst *map[string]any
	}{
		{inputJSON, &step.InputSummary},
		{outputJSON, &step.OutputSummary},
		{reasoningJSON, &step.Reasoning},
	} {
		if pair.src == nil || *pair.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(*pair.src), pair.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step payload: %w", err)
		}
	}

	return &step, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
