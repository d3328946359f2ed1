// Package metrics holds the Prometheus collectors for the analysis pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OracleCalls counts vision model calls by stage and outcome.
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_oracle_calls_total",
		Help: "Vision model calls by stage and outcome",
	}, []string{"stage", "outcome"})

	// OracleDuration tracks vision model latency.
	OracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blueprint_oracle_duration_seconds",
		Help:    "Vision model call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
	}, []string{"stage"})

	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_analyses_total",
		Help: "Completed analyses by result (ok, degraded, cached)",
	}, []string{"result"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blueprint_analysis_duration_seconds",
		Help:    "End-to-end analysis duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	Tiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_tiles_total",
		Help: "Tiles processed by outcome",
	}, []string{"outcome"})

	Suppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blueprint_nms_suppressed_total",
		Help: "Detections suppressed as overlap duplicates",
	})

	DroppedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blueprint_dropped_connections_total",
		Help: "Connections dropped for dangling or self-referencing endpoints",
	})

	Degradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_degradations_total",
		Help: "Degraded pipeline steps by stage",
	}, []string{"stage"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_cache_lookups_total",
		Help: "Analysis cache lookups by result",
	}, []string{"result"})

	TagParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blueprint_tag_parses_total",
		Help: "Instrument tags parsed by result",
	}, []string{"result"})
)

// ObserveOracle records one model call.
func ObserveOracle(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OracleCalls.WithLabelValues(stage, outcome).Inc()
	OracleDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
