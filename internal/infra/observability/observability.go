// Package observability exposes Prometheus metrics for the economy and the
// dispatch path. Everything is registered on the default registry and
// served by the API's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

var (
	// LedgerOps counts completed ledger operations by kind.
	LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yuna",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Completed ledger operations by kind.",
	}, []string{"op"})

	// Reservations counts reservation state transitions.
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yuna",
		Subsystem: "ledger",
		Name:      "reservations_total",
		Help:      "Reservation transitions (reserved, committed, refunded).",
	}, []string{"state"})

	// StoreConflicts counts optimistic-write conflicts seen by the ledger.
	StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yuna",
		Subsystem: "ledger",
		Name:      "store_conflicts_total",
		Help:      "Version conflicts retried against the account store.",
	})
)

// ─── Dispatch Metrics ───────────────────────────────────────────────────────

var (
	// DispatchAttempts counts per-endpoint attempts by outcome.
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yuna",
		Subsystem: "dispatch",
		Name:      "attempts_total",
		Help:      "Remote generation attempts by outcome (success, failure).",
	}, []string{"outcome"})

	// DispatchExhausted counts requests that failed on every endpoint.
	DispatchExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "yuna",
		Subsystem: "dispatch",
		Name:      "exhausted_total",
		Help:      "Requests that exhausted all configured endpoints.",
	})

	// EndpointHealth reports each endpoint's health state
	// (0 = up, 1 = suspect, 2 = down).
	EndpointHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yuna",
		Subsystem: "dispatch",
		Name:      "endpoint_health",
		Help:      "Endpoint health state: 0 up, 1 suspect, 2 down.",
	}, []string{"address"})

	// GenerationSeconds observes end-to-end paid generation latency.
	GenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "yuna",
		Subsystem: "dispatch",
		Name:      "generation_seconds",
		Help:      "End-to-end latency of successful generations.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
