// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Recommendation engine metrics.
var (
	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_operation_duration_seconds",
			Help:    "Duration of recommendation engine operations",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "outcome"},
	)

	RecommendationCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_requests_total",
			Help: "Recommendation cache lookups and writes by result",
		},
		[]string{"operation", "result"},
	)

	SchemesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_schemes_scored_total",
			Help: "Number of scheme assessments performed",
		},
	)

	MalformedRules = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_malformed_rules_total",
			Help: "Eligibility rules whose operator and value types disagreed",
		},
	)

	DependencyTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_dependency_timeouts_total",
			Help: "Profile or catalog fetches that exceeded the fetch timeout",
		},
		[]string{"dependency"},
	)

	CatalogCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Scheme catalog read-through cache results",
		},
		[]string{"result"},
	)
)

var (
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	RefreshEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_refresh_events_total",
			Help: "Refreshed-recommendations events published by result",
		},
		[]string{"result"},
	)
)
