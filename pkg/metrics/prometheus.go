// Package metrics provides Prometheus metrics for the capwatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the capwatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ingestion run metrics
	runsTotal   prometheus.Counter
	runsSkipped prometheus.Counter
	runsFailed  prometheus.Counter
	runDuration prometheus.Histogram
	lastRunUnix prometheus.Gauge
	rosterSize  prometheus.Gauge

	// Per-member polling metrics
	membersPolled  prometheus.Counter
	memberFailures prometheus.Counter
	rateLimitHits  prometheus.Counter

	// Cap event metrics
	capEventsFound     prometheus.Counter
	capEventsInserted  prometheus.Counter
	capEventsDuplicate prometheus.Counter

	// HTTP metrics for the query API
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "capwatch",
		subsystem:        "poller",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of completed ingestion runs",
	})

	m.runsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_skipped_total",
		Help:      "Total number of timer firings skipped because a run was still in flight",
	})

	m.runsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_failed_total",
		Help:      "Total number of runs abandoned before polling any member (roster failures)",
	})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Histogram of ingestion run duration in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.lastRunUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_run_unix",
		Help:      "Unix timestamp of the last completed ingestion run",
	})

	m.rosterSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "roster_size",
		Help:      "Number of clan members fetched at the start of the last run",
	})

	m.membersPolled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "members_polled_total",
		Help:      "Total number of member activity logs fetched successfully",
	})

	m.memberFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "member_failures_total",
		Help:      "Total number of member activity fetches that failed (excluding rate limits)",
	})

	m.rateLimitHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rate_limit_hits_total",
		Help:      "Total number of HTTP 429 responses from the activity endpoint",
	})

	m.capEventsFound = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cap_events_found_total",
		Help:      "Total number of cap events discovered by ingestion runs",
	})

	m.capEventsInserted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cap_events_inserted_total",
		Help:      "Total number of cap events newly inserted into the store",
	})

	m.capEventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cap_events_duplicate_total",
		Help:      "Total number of cap events ignored as already stored",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Ingestion run metrics functions.

// RecordRun records a completed ingestion run and its duration.
func RecordRun(durationSeconds float64) {
	globalManager.runsTotal.Inc()
	globalManager.runDuration.Observe(durationSeconds)
}

// RecordRunSkipped increments the skipped-run counter.
func RecordRunSkipped() {
	globalManager.runsSkipped.Inc()
}

// RecordRunFailed increments the failed-run counter.
func RecordRunFailed() {
	globalManager.runsFailed.Inc()
}

// UpdateLastRunUnix sets the timestamp of the last completed run.
func UpdateLastRunUnix(ts int64) {
	globalManager.lastRunUnix.Set(float64(ts))
}

// UpdateRosterSize sets the size of the last fetched roster.
func UpdateRosterSize(n int) {
	globalManager.rosterSize.Set(float64(n))
}

// Per-member polling metrics functions.

// RecordMemberPolled increments the successfully-polled member counter.
func RecordMemberPolled() {
	globalManager.membersPolled.Inc()
}

// RecordMemberFailure increments the failed member fetch counter.
func RecordMemberFailure() {
	globalManager.memberFailures.Inc()
}

// RecordRateLimitHit increments the 429 counter.
func RecordRateLimitHit() {
	globalManager.rateLimitHits.Inc()
}

// Cap event metrics functions.

// RecordCapEventsFound adds to the discovered cap event counter.
func RecordCapEventsFound(n int) {
	globalManager.capEventsFound.Add(float64(n))
}

// RecordCapEventsInserted adds to the inserted cap event counter.
func RecordCapEventsInserted(n int64) {
	globalManager.capEventsInserted.Add(float64(n))
}

// RecordCapEventsDuplicate adds to the duplicate cap event counter.
func RecordCapEventsDuplicate(n int64) {
	globalManager.capEventsDuplicate.Add(float64(n))
}

// HTTP metrics functions.

// RecordHTTPRequest records an HTTP request with endpoint, method, and status labels.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
