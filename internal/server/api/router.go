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

// Package api provides the HTTP API for the trace server.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mohit-nagaraj/xray-logger/internal/log"
	"github.com/mohit-nagaraj/xray-logger/internal/server/httputil"
	"github.com/mohit-nagaraj/xray-logger/internal/storage"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Version string

	// IngestRate limits ingest requests per second. Zero disables limiting.
	IngestRate float64
	// IngestBurst is the token bucket depth for ingest limiting.
	IngestBurst int
}

// Router wraps an http.ServeMux with the trace API endpoints.
type Router struct {
	mux     *http.ServeMux
	config  RouterConfig
	store   *storage.Store
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewRouter creates a new HTTP router with all API endpoints registered.
func NewRouter(cfg RouterConfig, store *storage.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = log.New(log.FromEnv())
	}

	r := &Router{
		mux:    http.NewServeMux(),
		config: cfg,
		store:  store,
		logger: log.WithComponent(logger, "api"),
	}

	if cfg.IngestRate > 0 {
		burst := cfg.IngestBurst
		if burst <= 0 {
			burst = int(cfg.IngestRate)
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.IngestRate), burst)
	}

	r.mux.HandleFunc("GET /healthz", r.handleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.HandleFunc("POST /v1/ingest", r.handleIngest)

	r.mux.HandleFunc("POST /v1/runs", r.handleCreateRun)
	r.mux.HandleFunc("GET /v1/runs", r.handleListRuns)
	r.mux.HandleFunc("GET /v1/runs/{id}", r.handleGetRun)
	r.mux.HandleFunc("PATCH /v1/runs/{id}", r.handleUpdateRun)

	r.mux.HandleFunc("POST /v1/steps", r.handleCreateSteps)
	r.mux.HandleFunc("GET /v1/steps", r.handleListSteps)

	r.mux.HandleFunc("GET /", r.handleRoot)

	return r
}

// ServeHTTP implements http.Handler. Every request gets a request ID and
// a completion log line.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)

	httpRequests.WithLabelValues(req.Method, statusClass(rec.status)).Inc()
	r.logger.Info("request completed",
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", rec.status),
		slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
	)
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    "xrayd",
		"version": r.config.Version,
	})
}

// handleHealth handles GET /healthz.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if err := r.store.DB().PingContext(req.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"pending_steps": r.store.PendingLen(),
	})
}
