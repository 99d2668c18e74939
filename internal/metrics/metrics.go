// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package metrics provides Prometheus instrumentation for the ingest
// pipeline, the sync scheduler, the live fabric and the source-host
// circuit breaker. Collectors are registered via promauto at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest pipeline

	IngestBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total ingest event batches, by outcome (accepted, rejected)",
		},
		[]string{"outcome"}, // accepted, rejected
	)

	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total events processed, by kind and flagged state",
		},
		[]string{"kind", "flagged"},
	)

	IngestRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rejections_total",
			Help: "Total admission-control rejections by cause",
		},
		[]string{"cause"}, // rate_limited, validation, auth
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_duration_seconds",
			Help:    "Duration of ingest batch processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alerts

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total alerts emitted, by level",
		},
		[]string{"level"},
	)

	AlertDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_deliveries_total",
			Help: "Outbound alert channel deliveries, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Sync scheduler

	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Sync scheduler cycles, by outcome",
		},
		[]string{"outcome"}, // completed, skipped
	)

	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Duration of full sync cycles",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SyncRepoErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_repo_errors_total",
			Help: "Per-repository sync failures skipped within a cycle",
		},
	)

	SimilarityMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "similarity_matches_total",
			Help: "Cross-repository similarity matches recorded",
		},
	)

	// Live fabric

	ObserverConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_connections",
			Help: "Currently connected dashboard observers",
		},
	)

	// Source host circuit breaker

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"}, // success, failure, rejected
	)
)
