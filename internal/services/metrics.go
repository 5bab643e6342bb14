package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline and persistence metrics. Registered on the default registry and
// exposed through the fiberprometheus middleware endpoint.
var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasmind_turns_total",
		Help: "Completed advisory turns by outcome.",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvasmind_turn_duration_seconds",
		Help:    "Wall time of a full advisory turn.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasmind_stage_failures_total",
		Help: "Non-fatal pipeline stage failures by stage.",
	}, []string{"stage"})

	memoryWritesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvasmind_memory_writes_skipped_total",
		Help: "Turns whose memory delta was empty so no write was issued.",
	})

	memoryWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvasmind_memory_write_retries_total",
		Help: "Retried profile persistence attempts.",
	})

	suggestionsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvasmind_suggestions_emitted_total",
		Help: "Proactive suggestions surfaced to clients.",
	})

	suggestionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvasmind_suggestions_resolved_total",
		Help: "Suggestion resolutions by verdict.",
	}, []string{"verdict"})
)
