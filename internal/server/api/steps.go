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
	"net/http"
	"strconv"

	"github.com/mohit-nagaraj/xray-logger/internal/server/httputil"
	"github.com/mohit-nagaraj/xray-logger/internal/storage"
	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

// createStepsRequest is the body of POST /v1/steps.
type createStepsRequest struct {
	Steps []*trace.Step `json:"steps"`
}

// listStepsResponse is the body of GET /v1/steps.
type listStepsResponse struct {
	Steps []*trace.Step `json:"steps"`
	Count int           `json:"count"`
}

// handleCreateSteps handles POST /v1/steps: a batch of complete step
// records persisted in one transaction, idempotent by step ID.
func (r *Router) handleCreateSteps(w http.ResponseWriter, req *http.Request) {
	var body createStepsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxIngestBody)).Decode(&body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Steps) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "steps is required")
		return
	}

	for _, step := range body.Steps {
		if step == nil || step.ID == "" || step.RunID == "" {
			httputil.WriteError(w, http.StatusBadRequest, "each step requires id and run_id")
			return
		}
		if step.Status != "" && !step.Status.Valid() {
			httputil.WriteError(w, http.StatusBadRequest, "invalid step status: "+string(step.Status))
			return
		}
	}

	if err := r.store.CreateSteps(req.Context(), body.Steps); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]int{"created": len(body.Steps)})
}

// handleListSteps handles GET /v1/steps with optional run_id, step_type,
// status, limit and offset query parameters.
func (r *Router) handleListSteps(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	filter := storage.StepFilter{
		RunID:    q.Get("run_id"),
		StepType: trace.StepType(q.Get("step_type")),
		Status:   trace.Status(q.Get("status")),
		Limit:    parseIntParam(q.Get("limit")),
		Offset:   parseIntParam(q.Get("offset")),
	}
	if filter.StepType != "" && !filter.StepType.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "invalid step_type filter")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	steps, err := r.store.ListSteps(req.Context(), filter)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if steps == nil {
		steps = []*trace.Step{}
	}

	httputil.WriteJSON(w, http.StatusOK, listStepsResponse{Steps: steps, Count: len(steps)})
}

// parseIntParam parses a non-negative integer query parameter, returning
// zero for missing or malformed values.
func parseIntParam(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
