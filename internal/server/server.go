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

// Package server assembles the trace server: storage, API router,
// authentication, and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mohit-nagaraj/xray-logger/internal/log"
	"github.com/mohit-nagaraj/xray-logger/internal/server/api"
	"github.com/mohit-nagaraj/xray-logger/internal/server/auth"
	"github.com/mohit-nagaraj/xray-logger/internal/storage"
)

// Server is the trace collection and query server.
type Server struct {
	config *Config
	logger *slog.Logger
	store  *storage.Store
	http   *http.Server
}

// New creates a server from the given configuration. The returned server
// owns its storage; Close releases it.
func New(cfg *Config, version string, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = log.New(log.FromEnv())
	}

	store, err := storage.New(storage.Config{
		Path:          cfg.DatabaseURL,
		PendingWindow: cfg.PendingWindow,
	}, log.WithComponent(logger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     version,
		IngestRate:  cfg.IngestRate,
		IngestBurst: cfg.IngestBurst,
	}, store, logger)

	authMW := auth.NewMiddleware(cfg.APIKey)
	if authMW.Enabled() {
		logger.Info("api authentication enabled", "api_key", log.SanitizeAPIKey(cfg.APIKey))
	} else {
		logger.Warn("api authentication disabled; set api_key to require credentials")
	}

	s := &Server{
		config: cfg,
		logger: log.WithComponent(logger, "server"),
		store:  store,
		http: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      authMW.Wrap(router),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	return s, nil
}

// Run starts the HTTP server and blocks until the context is cancelled
// or the listener fails. Shutdown is graceful and bounded by the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening",
			"addr", s.config.ListenAddr,
			"database", s.config.DatabaseURL)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.store.Close()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)
	if closeErr := s.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Store exposes the underlying store. Used by tests and the CLI's local
// query mode.
func (s *Server) Store() *storage.Store {
	return s.store
}
