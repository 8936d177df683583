// Package metrics provides Prometheus metrics for the pulse service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default configuration constants.
const (
	defaultRefreshInterval = 5 * time.Second
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	metricPrefix     string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByType        *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// Health scoring metrics
	healthRecordsCreated prometheus.Counter
	healthRecordsUpdated prometheus.Counter
	healthScore          *prometheus.HistogramVec

	// Allocation metrics
	capacityRejections prometheus.Counter
	conflictReports    prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	// Alert pipeline metrics
	alertsDispatched   *prometheus.CounterVec
	alertsSuppressed   *prometheus.CounterVec
	alertErrors        prometheus.Counter
	alertQueueSize     prometheus.Gauge
	alertQueueCapacity prometheus.Gauge
	alertEnqueues      prometheus.Counter
	alertEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// Store metrics
	storeQueryLatency prometheus.Histogram
	storeWriteLatency prometheus.Histogram

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pulse",
		subsystem:        "service",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one long function keeps all collectors in one place
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "Histogram of HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_endpoint_total",
		Help:      "Total errors by endpoint, method and error type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorsByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_type_total",
		Help:      "Total errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "error_latency_milliseconds",
		Help:      "Latency of failed operations in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"component", "error_type"})

	m.healthRecordsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "health_records_created_total",
		Help:      "Total number of sprint health records created",
	})

	m.healthRecordsUpdated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "health_records_updated_total",
		Help:      "Total number of sprint health records updated",
	})

	m.healthScore = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "health_score",
		Help:      "Distribution of computed overall health scores by RAG status",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 90, 100},
	}, []string{"rag_status"})

	m.capacityRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capacity_rejections_total",
		Help:      "Total allocation writes rejected for over-commitment",
	})

	m.conflictReports = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conflict_reports_total",
		Help:      "Total batch conflict report runs",
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_hits_total",
		Help:      "Total read-cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_misses_total",
		Help:      "Total read-cache misses",
	})

	m.alertsDispatched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_dispatched_total",
		Help:      "Total alerts dispatched by alert type",
	}, []string{"type"})

	m.alertsSuppressed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alerts_suppressed_total",
		Help:      "Total alerts suppressed by the dedup window, by alert type",
	}, []string{"type"})

	m.alertErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alert_errors_total",
		Help:      "Total alert pipeline failures (never surfaced to writers)",
	})

	m.alertQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alert_queue_size",
		Help:      "Current number of queued alert batches",
	})

	m.alertQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alert_queue_capacity",
		Help:      "Configured capacity of the alert queue",
	})

	m.alertEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alert_enqueues_total",
		Help:      "Total alert batches enqueued for delivery",
	})

	m.alertEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "alert_enqueue_errors_total",
		Help:      "Total alert batches dropped on enqueue (backpressure)",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of alert delivery workers",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Histogram of alert delivery latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total alert delivery worker errors",
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Histogram of store read latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_write_latency_milliseconds",
		Help:      "Histogram of store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_bytes",
		Help:      "Current allocated memory in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutines",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_milliseconds",
		Help:      "Histogram of average GC pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// HTTP metric helpers.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an error against an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorLatency observes how long a failed operation took.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// Health scoring metric helpers.

// RecordHealthRecordCreated counts a created sprint health record.
func RecordHealthRecordCreated() {
	globalManager.healthRecordsCreated.Inc()
}

// RecordHealthRecordUpdated counts an updated sprint health record.
func RecordHealthRecordUpdated() {
	globalManager.healthRecordsUpdated.Inc()
}

// RecordHealthScore observes a computed score under its RAG status.
func RecordHealthScore(ragStatus string, score float64) {
	globalManager.healthScore.WithLabelValues(ragStatus).Observe(score)
}

// Allocation metric helpers.

// RecordCapacityRejection counts an over-commitment rejection.
func RecordCapacityRejection() {
	globalManager.capacityRejections.Inc()
}

// RecordConflictReport counts a batch conflict report run.
func RecordConflictReport() {
	globalManager.conflictReports.Inc()
}

// RecordCacheHit counts a read-cache hit.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss counts a read-cache miss.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// Alert pipeline metric helpers.

// RecordAlertDispatched counts dispatched alerts of a type.
func RecordAlertDispatched(alertType string) {
	globalManager.alertsDispatched.WithLabelValues(alertType).Inc()
}

// RecordAlertSuppressed counts alerts suppressed by the dedup window.
func RecordAlertSuppressed(alertType string) {
	globalManager.alertsSuppressed.WithLabelValues(alertType).Inc()
}

// RecordAlertError counts an alert pipeline failure.
func RecordAlertError() {
	globalManager.alertErrors.Inc()
}

// UpdateAlertQueueSize sets the current alert queue depth.
func UpdateAlertQueueSize(size int) {
	globalManager.alertQueueSize.Set(float64(size))
}

// UpdateAlertQueueCapacity sets the configured alert queue capacity.
func UpdateAlertQueueCapacity(capacity int) {
	globalManager.alertQueueCapacity.Set(float64(capacity))
}

// RecordAlertEnqueue counts an enqueued alert batch.
func RecordAlertEnqueue() {
	globalManager.alertEnqueues.Inc()
}

// RecordAlertEnqueueError counts a dropped alert batch.
func RecordAlertEnqueueError() {
	globalManager.alertEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of delivery workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes alert delivery latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError counts a delivery worker error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Store metric helpers.

// RecordStoreQueryLatency observes a store read.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordStoreWriteLatency observes a store write.
func RecordStoreWriteLatency(latencyMs float64) {
	globalManager.storeWriteLatency.Observe(latencyMs)
}

// System metric helpers.

// UpdateSystemMemoryUsage sets the allocated-memory gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes average GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry all service metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
