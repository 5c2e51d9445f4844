// Package metrics provides Prometheus metrics for the hackathon manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hackathon"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// RateLimitedTotal counts requests rejected by the submission rate limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
	)
)

// Workflow outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeDenied   = "denied"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Workflow metrics
var (
	// WorkflowsTotal counts workflow runs by action and outcome.
	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Total number of workflow runs by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// ConflictRetriesTotal counts read-decide-write cycles repeated after a
	// version conflict.
	ConflictRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "conflict_retries_total",
			Help:      "Total number of workflow attempts repeated after a version conflict",
		},
		[]string{"action"},
	)

	// InconsistenciesTotal counts multi-entity writes that stopped half way.
	InconsistenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "inconsistencies_total",
			Help:      "Total number of partially applied multi-entity writes",
		},
		[]string{"action"},
	)
)

// Domain gauges, refreshed by the API on each scrape of the stats endpoint.
var (
	EntitiesCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entities",
			Help:      "Number of stored entities by kind",
		},
		[]string{"kind"},
	)
)
