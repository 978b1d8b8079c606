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

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doRequest(t *testing.T, m *Middleware, path string, headers map[string]string) int {
	t.Helper()

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	m := NewMiddleware("")
	assert.False(t, m.Enabled())
	assert.Equal(t, http.StatusOK, doRequest(t, m, "/v1/runs", nil))
}

func TestBearerTokenAccepted(t *testing.T) {
	m := NewMiddleware("secret")
	assert.True(t, m.Enabled())

	code := doRequest(t, m, "/v1/runs", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestAPIKeyHeaderAccepted(t *testing.T) {
	m := NewMiddleware("secret")
	code := doRequest(t, m, "/v1/runs", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, code)
}

func TestMissingCredentialsRejected(t *testing.T) {
	m := NewMiddleware("secret")
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, m, "/v1/runs", nil))
}

func TestWrongCredentialsRejected(t *testing.T) {
	m := NewMiddleware("secret")
	code := doRequest(t, m, "/v1/runs", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProbeEndpointsBypassAuth(t *testing.T) {
	m := NewMiddleware("secret")
	assert.Equal(t, http.StatusOK, doRequest(t, m, "/healthz", nil))
	assert.Equal(t, http.StatusOK, doRequest(t, m, "/metrics", nil))
}
