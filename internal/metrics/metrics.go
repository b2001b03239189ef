// Package metrics registers the Prometheus instruments for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync outcomes used as label values on SyncsTotal.
const (
	OutcomeAccepted = "accepted"
	OutcomeNoChange = "no_change"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// SyncsTotal counts sync requests by outcome.
	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tally",
		Subsystem: "sync",
		Name:      "requests_total",
		Help:      "Sync requests processed, by outcome.",
	}, []string{"outcome"})

	// SyncDuration observes end-to-end sync latency.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tally",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time spent merging and persisting one sync request.",
		Buckets:   prometheus.DefBuckets,
	})

	// EventsPublished counts change notifications handed to the publisher.
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tally",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "BillUpdated events published after commits.",
	})
)
