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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mohit-nagaraj/xray-logger/internal/log"
	"github.com/mohit-nagaraj/xray-logger/internal/server/httputil"
	"github.com/mohit-nagaraj/xray-logger/internal/storage"
	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// createRunRequest is the body of POST /v1/runs.
type createRunRequest struct {
	ID           string         `json:"id,omitempty"`
	PipelineName string         `json:"pipeline_name"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// updateRunRequest is the body of PATCH /v1/runs/{id}.
type updateRunRequest struct {
	Status       trace.Status `json:"status"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// listRunsResponse is the body of GET /v1/runs.
type listRunsResponse struct {
	Runs  []*trace.Run `json:"runs"`
	Count int          `json:"count"`
}

// handleCreateRun handles POST /v1/runs. The server assigns an ID when
// the client omits one; resubmitting an ID is idempotent.
func (r *Router) handleCreateRun(w http.ResponseWriter, req *http.Request) {
	var body createRunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.PipelineName == "" {
		httputil.WriteError(w, http.StatusBadRequest, "pipeline_name is required")
		return
	}

	run := &trace.Run{
		ID:           body.ID,
		PipelineName: body.PipelineName,
		Status:       trace.StatusRunning,
		StartedAt:    timeOrNow(body.StartedAt),
		Metadata:     body.Metadata,
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if err := r.store.CreateRun(req.Context(), run); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.WithRunContext(r.logger, run.ID, run.PipelineName).Debug("run created")
	httputil.WriteJSON(w, http.StatusCreated, run)
}

// handleUpdateRun handles PATCH /v1/runs/{id}. Only the terminal
// transition is accepted; a replay of the same transition succeeds
// without effect.
func (r *Router) handleUpdateRun(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var body updateRunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !body.Status.Terminal() {
		httputil.WriteError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}

	err := r.store.UpdateRun(req.Context(), id, body.Status, body.EndedAt, body.ErrorMessage)
	if errors.Is(err, storage.ErrRunNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	run, err := r.store.GetRun(req.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// handleListRuns handles GET /v1/runs with optional pipeline, status,
// limit and offset query parameters.
func (r *Router) handleListRuns(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	filter := storage.RunFilter{
		Pipeline: q.Get("pipeline"),
		Status:   trace.Status(q.Get("status")),
		Limit:    parseIntParam(q.Get("limit")),
		Offset:   parseIntParam(q.Get("offset")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	runs, err := r.store.ListRuns(req.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*trace.Run{}
	}

	httputil.WriteJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun handles GET /v1/runs/{id}, returning the run with its
// steps in sequence order.
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) {
	run, err := r.store.GetRun(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrRunNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, run)
}
