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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pendingSteps tracks steps waiting for their run record
	pendingSteps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xray_pending_steps",
			Help: "Steps held in the reconciliation area waiting for their run record",
		},
	)

	// orphanSteps tracks steps persisted without a reconciled run
	orphanSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xray_orphan_steps_total",
			Help: "Total steps persisted as orphans after the pending window expired",
		},
	)
)
