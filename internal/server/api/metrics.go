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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xray_http_requests_total",
		Help: "HTTP requests handled, by method and status class.",
	}, []string{"method", "status"})

	ingestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xray_ingest_events_total",
		Help: "Ingest events processed, by event type and result.",
	}, []string{"event_type", "result"})

	ingestRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xray_ingest_rejected_total",
		Help: "Ingest requests rejected by rate limiting.",
	})
)
