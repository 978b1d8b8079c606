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

// Package auth provides authentication middleware for the ingest API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mohit-nagaraj/xray-logger/internal/server/httputil"
)

// Middleware validates bearer credentials on incoming requests.
// An empty key disables authentication entirely.
type Middleware struct {
	apiKey string
}

// NewMiddleware creates auth middleware for the given API key.
func NewMiddleware(apiKey string) *Middleware {
	return &Middleware{apiKey: apiKey}
}

// Enabled reports whether requests will actually be authenticated.
func (m *Middleware) Enabled() bool {
	return m.apiKey != ""
}

// Wrap wraps an http.Handler with bearer authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Health and metrics stay reachable for probes and scrapers.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			m.unauthorized(w, "authentication required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.apiKey)) != 1 {
			m.unauthorized(w, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken extracts the credential from the request. Only header
// transport is accepted; query parameters leak into access logs.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httputil.WriteError(w, http.StatusUnauthorized, message)
}
