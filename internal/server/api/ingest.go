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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mohit-nagaraj/xray-logger/internal/log"
	"github.com/mohit-nagaraj/xray-logger/internal/server/httputil"
	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// maxIngestBody bounds the request body size. A full SDK batch of
// summarized events fits comfortably; anything larger is malformed or
// hostile.
const maxIngestBody = 8 << 20 // 8 MiB

// handleIngest handles POST /v1/ingest. The body is a JSON array of
// lifecycle events. Events are applied independently; a malformed or
// failed event never blocks its siblings, and the response is always 200
// with per-event results so the SDK never retries.
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	if r.limiter != nil && !r.limiter.Allow() {
		ingestRejected.Inc()
		w.Header().Set("Retry-After", "1")
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var events []trace.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxIngestBody)).Decode(&events); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp := trace.IngestResponse{
		Processed: len(events),
		Results:   make([]trace.EventResult, 0, len(events)),
	}

	for _, ev := range events {
		result := trace.EventResult{ID: ev.ID, Type: ev.Type, Success: true}
		if err := r.applyEvent(req.Context(), &ev); err != nil {
			result.Success = false
			result.Error = err.Error()
			resp.Failed++
			ingestEvents.WithLabelValues(string(ev.Type), "error").Inc()
			runID := ev.RunID
			if runID == "" {
				runID = ev.ID
			}
			r.logger.Warn("ingest event failed",
				log.EventKey, ev.Type, "id", ev.ID,
				log.RunIDKey, runID, log.Error(err))
		} else {
			resp.Succeeded++
			ingestEvents.WithLabelValues(string(ev.Type), "ok").Inc()
		}
		resp.Results = append(resp.Results, result)
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// applyEvent dispatches one lifecycle event to the store.
func (r *Router) applyEvent(ctx context.Context, ev *trace.Event) error {
	switch ev.Type {
	case trace.EventRunStart:
		return r.store.CreateRun(ctx, &trace.Run{
			ID:           ev.ID,
			PipelineName: ev.PipelineName,
			Status:       trace.StatusRunning,
			StartedAt:    timeOrNow(ev.StartedAt),
			Metadata:     ev.Metadata,
		})

	case trace.EventRunEnd:
		status := ev.Status
		if !status.Terminal() {
			return fmt.Errorf("run_end requires a terminal status, got %q", status)
		}
		return r.store.UpdateRun(ctx, ev.ID, status, ev.EndedAt, ev.ErrorMessage)

	case trace.EventStepStart:
		return r.store.ApplyStepStart(ctx, &trace.Step{
			ID:           ev.ID,
			RunID:        ev.RunID,
			ParentID:     ev.ParentID,
			Type:         ev.StepType,
			Name:         ev.Name,
			Status:       trace.StatusRunning,
			Sequence:     ev.Sequence,
			StartedAt:    timeOrNow(ev.StartedAt),
			InputSummary: ev.InputSummary,
		})

	case trace.EventStepEnd:
		status := ev.Status
		if !status.Terminal() {
			return fmt.Errorf("step_end requires a terminal status, got %q", status)
		}
		return r.store.ApplyStepEnd(ctx, &trace.Step{
			ID:            ev.ID,
			RunID:         ev.RunID,
			ParentID:      ev.ParentID,
			Type:          ev.StepType,
			Name:          ev.Name,
			Status:        status,
			Sequence:      ev.Sequence,
			StartedAt:     timeOrNow(ev.StartedAt),
			EndedAt:       ev.EndedAt,
			OutputSummary: ev.OutputSummary,
			Reasoning:     ev.Reasoning,
			ErrorMessage:  ev.ErrorMessage,
			Orphaned:      ev.Orphaned,
		})

	default:
		return fmt.Errorf("unknown event type: %q", ev.Type)
	}
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}
