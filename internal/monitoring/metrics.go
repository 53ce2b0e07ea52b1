package monitoring

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "teamsignal"

// Metrics records service metrics on a Prometheus registry and keeps a few
// cheap counters for the health endpoint
type Metrics struct {
	StartTime time.Time

	requestCount int64
	errorCount   int64
	fallbacks    int64
	cacheHits    int64
	cacheMisses  int64

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	classifierCalls    *prometheus.CounterVec
	classifierDuration prometheus.Histogram
	heuristicFallbacks *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec

	invalidRecords      *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	infeasibleTasks     prometheus.Counter
	cacheLookups        *prometheus.CounterVec
	snapshotWriteErrors prometheus.Counter
	rateLimited         prometheus.Counter
}

// NewMetrics registers all collectors on reg. A nil registerer uses a fresh
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	auto := promauto.With(reg)

	return &Metrics{
		StartTime: time.Now(),

		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		classifierCalls: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "calls_total",
			Help:      "Classifier calls by outcome",
		}, []string{"outcome"}),

		classifierDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "call_duration_seconds",
			Help:      "Classifier call latency including retries",
			Buckets:   prometheus.DefBuckets,
		}),

		heuristicFallbacks: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "heuristic_fallbacks_total",
			Help:      "Messages scored by the keyword heuristic, by reason",
		}, []string{"reason"}),

		breakerTransitions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state changes by target state",
		}, []string{"state"}),

		invalidRecords: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_records_total",
			Help:      "Input records skipped because they failed validation",
		}, []string{"kind"}),

		operationDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		infeasibleTasks: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "infeasible_tasks_total",
			Help:      "Tasks no roster member could be assigned",
		}),

		cacheLookups: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Classification cache lookups by result",
		}, []string{"result"}),

		snapshotWriteErrors: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "snapshot_write_errors_total",
			Help:      "Failed attempts to persist score or risk snapshots",
		}),

		rateLimited: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the API rate limiter",
		}),
	}
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddInt64(&m.requestCount, 1)
	if status >= 400 {
		atomic.AddInt64(&m.errorCount, 1)
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordClassifierCall records the outcome of one classifier call
func (m *Metrics) RecordClassifierCall(outcome string, duration time.Duration) {
	m.classifierCalls.WithLabelValues(outcome).Inc()
	m.classifierDuration.Observe(duration.Seconds())
}

// RecordFallback counts a message scored by the heuristic instead of the classifier
func (m *Metrics) RecordFallback(reason string) {
	atomic.AddInt64(&m.fallbacks, 1)
	m.heuristicFallbacks.WithLabelValues(reason).Inc()
}

// RecordBreakerTransition counts a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(state string) {
	m.breakerTransitions.WithLabelValues(state).Inc()
}

// RecordInvalidRecords counts skipped input records of a kind
func (m *Metrics) RecordInvalidRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	m.invalidRecords.WithLabelValues(kind).Add(float64(n))
}

// ObserveOperation records how long an engine operation took
func (m *Metrics) ObserveOperation(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordInfeasible counts tasks that could not be assigned
func (m *Metrics) RecordInfeasible(n int) {
	if n > 0 {
		m.infeasibleTasks.Add(float64(n))
	}
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.cacheHits, 1)
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.cacheMisses, 1)
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// IncrementSnapshotWriteError counts a failed snapshot write
func (m *Metrics) IncrementSnapshotWriteError() {
	m.snapshotWriteErrors.Inc()
}

// RecordRateLimited counts a request rejected with 429
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

// GetStats returns a small summary for the health endpoint
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.requestCount)
	errs := atomic.LoadInt64(&m.errorCount)
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)

	errorRate := 0.0
	if requests > 0 {
		errorRate = float64(errs) / float64(requests)
	}
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return map[string]interface{}{
		"uptime_seconds":      int64(time.Since(m.StartTime).Seconds()),
		"request_count":       requests,
		"error_count":         errs,
		"error_rate":          errorRate,
		"heuristic_fallbacks": atomic.LoadInt64(&m.fallbacks),
		"cache_hit_rate":      hitRate,
	}
}
