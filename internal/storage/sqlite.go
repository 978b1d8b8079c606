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

// Package storage provides run and step persistence.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mohit-nagaraj/xray-logger/internal/log"
	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// Store provides SQLite-backed storage for runs and steps.
//
// Run inserts and step batches are independent transactions: steps arrive
// asynchronously, possibly before their run record commits. Steps that
// reference a run not yet present are held in a bounded in-memory pending
// area and attached when the run arrives; entries that outlive the
// pending window are persisted as orphans rather than lost.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	pending *reconciler

	sweepStop    chan struct{}
	sweepStopped chan struct{}
}

// Config contains storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int

	// PendingWindow is how long a step may wait for its run record
	// before being persisted as an orphan. Default 30s.
	PendingWindow time.Duration

	// PendingLimit bounds the pending area's record count. Default 10000.
	PendingLimit int

	// SweepInterval is how often expired pending steps are reconciled.
	// Default 5s.
	SweepInterval time.Duration
}

// New creates a new SQLite storage backend and starts the pending-step
// sweeper.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = 30 * time.Second
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 10000
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}

	// SQLite connection string with WAL mode for better concurrency
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		db:           db,
		logger:       logger,
		pending:      newReconciler(cfg.PendingLimit, cfg.PendingWindow),
		sweepStop:    make(chan struct{}),
		sweepStopped: make(chan struct{}),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	go s.sweepLoop(cfg.SweepInterval)

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			metadata TEXT,
			error_message TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline_name)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		// run_id is deliberately not a foreign key: orphan steps are
		// persisted with a run id that may never resolve.
		`CREATE TABLE IF NOT EXISTS steps (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			parent_id TEXT,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			input_summary TEXT,
			output_summary TEXT,
			reasoning TEXT,
			error_message TEXT,
			orphaned INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_type ON steps(type)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_status ON steps(status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateRun persists a run record, idempotently by run ID, then attaches
// any steps waiting for this run in the pending area.
func (s *Store) CreateRun(ctx context.Context, run *trace.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.PipelineName == "" {
		return fmt.Errorf("pipeline_name is required")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("invalid run status: %q", run.Status)
	}

	metadataJSON, err := marshalJSON(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO runs (id, pipeline_name, status, started_at, ended_at, metadata, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pipeline_name = excluded.pipeline_name,
			metadata = excluded.metadata
	`

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.PipelineName, run.Status, run.StartedAt.UnixNano(),
		nanosOrNil(run.EndedAt), metadataJSON, nullString(run.ErrorMessage), now,
	)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	// Steps that arrived ahead of this run can attach now.
	for _, step := range s.pending.Take(run.ID) {
		if err := s.UpsertStep(ctx, step); err != nil {
			log.WithStepContext(s.logger, run.ID, step.ID).Warn(
				"failed to attach pending step", log.Error(err))
		}
	}

	return nil
}

// UpdateRun applies the terminal transition to a run. The end timestamp
// is set iff the status is terminal, preserving the run invariant.
func (s *Store) UpdateRun(ctx context.Context, id string, status trace.Status, endedAt *time.Time, errMsg string) error {
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid run status: %q", status)
	}
	if status.Terminal() && endedAt == nil {
		now := time.Now().UTC()
		endedAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, ended_at = ?, error_message = ?
		WHERE id = ? AND status = 'running'
	`, status, nanosOrNil(endedAt), nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown or already terminal. The transition happens
		// exactly once; a replayed run_end is not an error.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check run: %w", err)
		}
		if !exists {
			return ErrRunNotFound
		}
	}

	return nil
}

// UpsertStep writes a full step record, idempotently by step ID. A step
// referencing an unknown run goes to the pending area instead; the write
// is still accepted.
func (s *Store) UpsertStep(ctx context.Context, step *trace.Step) error {
	if step == nil || step.ID == "" {
		return fmt.Errorf("step id is required")
	}
	if step.RunID == "" {
		return fmt.Errorf("step run_id is required")
	}

	known, err := s.runExists(ctx, step.RunID)
	if err != nil {
		return err
	}
	if !known {
		for _, evicted := range s.pending.Add(step) {
			s.persistOrphan(ctx, evicted)
		}
		return nil
	}

	return s.writeStep(ctx, step)
}

// ApplyStepStart records the opening half of a step's lifecycle. If a row
// for the step already exists (an end event arrived first across batch
// boundaries), the terminal fields are left untouched.
func (s *Store) ApplyStepStart(ctx context.Context, step *trace.Step) error {
	if step == nil || step.ID == "" {
		return fmt.Errorf("step id is required")
	}
	if step.RunID == "" {
		return fmt.Errorf("step run_id is required")
	}

	known, err := s.runExists(ctx, step.RunID)
	if err != nil {
		return err
	}
	if !known {
		for _, evicted := range s.pending.Add(step) {
			s.persistOrphan(ctx, evicted)
		}
		return nil
	}

	inputJSON, err := marshalJSON(step.InputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal input summary: %w", err)
	}

	query := `
		INSERT INTO steps (id, run_id, parent_id, type, name, status, sequence, started_at, input_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			type = excluded.type,
			name = excluded.name,
			sequence = excluded.sequence,
			started_at = excluded.started_at,
			input_summary = excluded.input_summary
	`

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, query,
		step.ID, step.RunID, nullString(step.ParentID), step.Type, step.Name,
		trace.StatusRunning, step.Sequence, step.StartedAt.UnixNano(), inputJSON, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store step start: %w", err)
	}

	return nil
}

// ApplyStepEnd records the closing half of a step's lifecycle. An end
// event whose start was lost (a dropped batch) still produces a row.
func (s *Store) ApplyStepEnd(ctx context.Context, step *trace.Step) error {
	if step == nil || step.ID == "" {
		return fmt.Errorf("step id is required")
	}
	if step.RunID == "" {
		return fmt.Errorf("step run_id is required")
	}

	// Merge into a pending record when the run is still unknown.
	if s.pending.MergeEnd(step) {
		return nil
	}

	known, err := s.runExists(ctx, step.RunID)
	if err != nil {
		return err
	}
	if !known {
		for _, evicted := range s.pending.Add(step) {
			s.persistOrphan(ctx, evicted)
		}
		return nil
	}

	outputJSON, err := marshalJSON(step.OutputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal output summary: %w", err)
	}
	reasoningJSON, err := marshalJSON(step.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning: %w", err)
	}

	stepType := step.Type
	if stepType == "" {
		stepType = trace.StepCustom
	}

	query := `
		INSERT INTO steps (id, run_id, parent_id, type, name, status, sequence, started_at, ended_at,
			output_summary, reasoning, error_message, orphaned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at,
			output_summary = excluded.output_summary,
			reasoning = excluded.reasoning,
			error_message = excluded.error_message,
			orphaned = excluded.orphaned
	`

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, query,
		step.ID, step.RunID, nullString(step.ParentID), stepType, step.Name,
		step.Status, step.Sequence, step.StartedAt.UnixNano(), nanosOrNil(step.EndedAt),
		outputJSON, reasoningJSON, nullString(step.ErrorMessage), step.Orphaned, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store step end: %w", err)
	}

	return nil
}

// CreateSteps persists a batch of complete step records in one
// transaction, idempotently by step identifier: resubmitting a batch
// leaves exactly one stored record per ID. Steps referencing unknown runs
// go to the pending area.
func (s *Store) CreateSteps(ctx context.Context, steps []*trace.Step) error {
	var held []*trace.Step

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, step := range steps {
		if step == nil || step.ID == "" || step.RunID == "" {
			return fmt.Errorf("step id and run_id are required")
		}

		var known bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, step.RunID).Scan(&known); err != nil {
			return fmt.Errorf("failed to check run: %w", err)
		}
		if !known {
			held = append(held, step)
			continue
		}

		if err := execWriteStep(ctx, tx, step); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}

	for _, step := range held {
		for _, evicted := range s.pending.Add(step) {
			s.persistOrphan(ctx, evicted)
		}
	}

	return nil
}

// writeStep persists one complete step record outside a caller-held
// transaction.
func (s *Store) writeStep(ctx context.Context, step *trace.Step) error {
	return execWriteStep(ctx, s.db, step)
}

// execer abstracts *sql.DB and *sql.Tx for step writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execWriteStep(ctx context.Context, db execer, step *trace.Step) error {
	inputJSON, err := marshalJSON(step.InputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal input summary: %w", err)
	}
	outputJSON, err := marshalJSON(step.OutputSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal output summary: %w", err)
	}
	reasoningJSON, err := marshalJSON(step.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning: %w", err)
	}

	stepType := step.Type
	if stepType == "" {
		stepType = trace.StepCustom
	}
	status := step.Status
	if status == "" {
		status = trace.StatusRunning
	}

	query := `
		INSERT INTO steps (id, run_id, parent_id, type, name, status, sequence, started_at, ended_at,
			input_summary, output_summary, reasoning, error_message, orphaned, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	now := time.Now().UnixNano()
	_, err = db.ExecContext(ctx, query,
		step.ID, step.RunID, nullString(step.ParentID), stepType, step.Name,
		status, step.Sequence, step.StartedAt.UnixNano(), nanosOrNil(step.EndedAt),
		inputJSON, outputJSON, reasoningJSON, nullString(step.ErrorMessage), step.Orphaned, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store step: %w", err)
	}

	return nil
}

// persistOrphan writes a step whose run never arrived within the pending
// window. The run id is recorded but the record is flagged unresolved.
func (s *Store) persistOrphan(ctx context.Context, step *trace.Step) {
	step.Orphaned = true
	logger := log.WithStepContext(s.logger, step.RunID, step.ID)
	if err := s.writeStep(ctx, step); err != nil {
		logger.Warn("failed to persist orphan step", log.Error(err))
		return
	}
	orphanSteps.Inc()
	logger.Debug("persisted orphan step")
}

// sweepLoop periodically reconciles pending steps: attaches those whose
// run has since arrived and persists expired ones as orphans.
func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.sweepStopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one reconciliation pass. Exported so tests and shutdown can
// drive it deterministically.
func (s *Store) Sweep(ctx context.Context) {
	for _, step := range s.pending.Expired(time.Now()) {
		known, err := s.runExists(ctx, step.RunID)
		if err == nil && known {
			if err := s.writeStep(ctx, step); err != nil {
				log.WithStepContext(s.logger, step.RunID, step.ID).Warn(
					"failed to attach pending step", log.Error(err))
			}
			continue
		}
		s.persistOrphan(ctx, step)
	}
	pendingSteps.Set(float64(s.pending.Len()))
}

// PendingLen returns the number of steps waiting for their run record.
func (s *Store) PendingLen() int {
	return s.pending.Len()
}

func (s *Store) runExists(ctx context.Context, runID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE id = ?)`, runID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check run: %w", err)
	}
	return exists, nil
}

// Close stops the sweeper, drains the pending area as orphans, and closes
// the database.
func (s *Store) Close() error {
	select {
	case <-s.sweepStop:
	default:
		close(s.sweepStop)
		<-s.sweepStopped
	}

	// Final drain: pending steps are persisted rather than lost.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, step := range s.pending.TakeAll() {
		s.persistOrphan(ctx, step)
	}

	return s.db.Close()
}

// DB returns the underlying database connection.
// This is exported for testing and advanced use cases.
func (s *Store) DB() *sql.DB {
	return s.db
}

func marshalJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nanosOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
