package sdk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsDropped tracks events discarded before delivery, by reason.
	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xray_sdk_events_dropped_total",
			Help: "Total events dropped by the SDK by reason (buffer_full, no_run, closed)",
		},
		[]string{"reason"},
	)

	// batchesDropped tracks flush batches discarded after transport failure.
	batchesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xray_sdk_batches_dropped_total",
			Help: "Total event batches dropped after a transport failure",
		},
	)

	// eventsSent tracks events successfully handed to the API.
	eventsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xray_sdk_events_sent_total",
			Help: "Total events successfully delivered to the ingest API",
		},
	)
)
