// Package metrics exposes Prometheus instruments for queries, the statistics
// cache and background jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gymstats/gymstats-hub/internal/domain/filter"
)

const namespace = "gymstats"

// Metrics implements query.Metrics and records job outcomes.
type Metrics struct {
	registry *prometheus.Registry

	// searchLatency measures search handling time.
	searchLatency prometheus.Histogram

	// searchDiagnostics counts filter diagnostics by kind
	// (pattern, key, comparer, values, grade_scale, other).
	searchDiagnostics *prometheus.CounterVec

	// aggregationLatency measures statistics building. Labels: operation.
	aggregationLatency *prometheus.HistogramVec

	// cacheRequests counts lookups. Labels: namespace, result (hit, miss).
	cacheRequests *prometheus.CounterVec

	// jobRuns counts background job runs. Labels: job, status.
	jobRuns *prometheus.CounterVec

	// snapshotsSaved counts stored snapshots. Labels: interval, reused.
	snapshotsSaved *prometheus.CounterVec
}

// New creates the instruments on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		searchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Problem search latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		searchDiagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "diagnostics_total",
			Help:      "Filter diagnostics reported to users, by kind",
		}, []string{"kind"}),
		aggregationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "duration_seconds",
			Help:      "Statistics aggregation latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Statistics cache lookups by result",
		}, []string{"namespace", "result"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by status",
		}, []string{"job", "status"}),
		snapshotsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "total",
			Help:      "Interval snapshots by interval and whether a stored one was reused",
		}, []string{"interval", "reused"}),
	}
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(d time.Duration, diagnostics []string) {
	m.searchLatency.Observe(d.Seconds())
	for _, msg := range diagnostics {
		m.searchDiagnostics.WithLabelValues(filter.DiagnosticKind(msg)).Inc()
	}
}

// ObserveAggregation records one statistics build.
func (m *Metrics) ObserveAggregation(operation string, d time.Duration) {
	m.aggregationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// CacheResult records a cache lookup.
func (m *Metrics) CacheResult(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(namespace, result).Inc()
}

// JobRun records a job outcome: "success", "failure" or "skipped".
func (m *Metrics) JobRun(job, status string) {
	m.jobRuns.WithLabelValues(job, status).Inc()
}

// SnapshotSaved records one snapshot command result.
func (m *Metrics) SnapshotSaved(interval string, reused bool) {
	r := "false"
	if reused {
		r = "true"
	}
	m.snapshotsSaved.WithLabelValues(interval, r).Inc()
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
