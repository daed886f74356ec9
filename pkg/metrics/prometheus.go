// Package metrics provides Prometheus metrics for the reputor scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Scoring pipeline metrics
	recomputesTotal  *prometheus.CounterVec
	recomputeLatency prometheus.Histogram
	degradedRuns     prometheus.Counter
	snapshotUpserts  prometheus.Counter
	historyAppends   prometheus.Counter

	// Safety metrics
	isolationViolations prometheus.Counter
	writeRetries        prometheus.Counter

	// Rule-set metrics
	ruleVersionsCreated prometheus.Counter
	ruleActivations     *prometheus.CounterVec
	highImpactDiffs     prometheus.Counter

	// Sweep queue/worker metrics
	queueCapacity    prometheus.Gauge
	queueSize        prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueEnqueueErrs prometheus.Counter
	queueDequeues    prometheus.Counter
	workerActive     prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics by component
	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPause        prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "reputor",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.recomputesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recomputes_total", Help: "Recomputations by score kind and trigger.",
	}, []string{"kind", "trigger"})

	m.recomputeLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "recompute_latency_ms", Help: "End-to-end recompute latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.degradedRuns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "degraded_runs_total", Help: "Recomputations that fell back to the neutral score.",
	})

	m.snapshotUpserts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "snapshot_upserts_total", Help: "Score snapshot upserts.",
	})

	m.historyAppends = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "history_appends_total", Help: "Audit history rows appended.",
	})

	m.isolationViolations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "isolation_violations_total", Help: "Sandbox isolation violations detected and aborted.",
	})

	m.writeRetries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "write_retries_total", Help: "Storage writes retried after a first failure.",
	})

	m.ruleVersionsCreated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "rule_versions_created_total", Help: "Rule-set versions created.",
	})

	m.ruleActivations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "rule_activations_total", Help: "Rule-set activations by environment.",
	}, []string{"environment"})

	m.highImpactDiffs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "high_impact_diffs_total", Help: "Rule-set diffs exceeding the high-impact threshold.",
	})

	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_capacity", Help: "Capacity of the sweep recompute queue.",
	})
	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_size", Help: "Current size of the sweep recompute queue.",
	})
	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_utilization", Help: "Sweep queue utilization ratio.",
	})
	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_enqueues_total", Help: "Jobs enqueued for sweep recomputation.",
	})
	m.queueEnqueueErrs = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_enqueue_errors_total", Help: "Sweep enqueue failures (backpressure, closed).",
	})
	m.queueDequeues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_queue_dequeues_total", Help: "Jobs dequeued by sweep workers.",
	})
	m.workerActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sweep_workers_active", Help: "Sweep workers currently running.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_ms", Help: "HTTP request duration in milliseconds.",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})

	m.errorsByComponent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_total", Help: "Errors by component and type.",
	}, []string{"component", "type"})

	m.systemMemoryUsage = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "memory_usage_bytes", Help: "Allocated heap bytes.",
	})
	m.systemGoroutineCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "goroutines", Help: "Current goroutine count.",
	})
	m.systemGCPause = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "gc_pause_ms", Help: "Average GC pause time in milliseconds.",
		Buckets: m.histogramBuckets,
	})
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry { return customRegistry }

// Package-level recording helpers against the global manager.

func RecordRecompute(kind, trigger string) {
	globalManager.recomputesTotal.WithLabelValues(kind, trigger).Inc()
}

func ObserveRecomputeLatency(ms float64) { globalManager.recomputeLatency.Observe(ms) }

func RecordDegradedRun() { globalManager.degradedRuns.Inc() }

func RecordSnapshotUpsert() { globalManager.snapshotUpserts.Inc() }

func RecordHistoryAppend() { globalManager.historyAppends.Inc() }

func RecordIsolationViolation() { globalManager.isolationViolations.Inc() }

func RecordWriteRetry() { globalManager.writeRetries.Inc() }

func RecordRuleVersionCreated() { globalManager.ruleVersionsCreated.Inc() }

func RecordRuleActivation(environment string) {
	globalManager.ruleActivations.WithLabelValues(environment).Inc()
}

func RecordHighImpactDiff() { globalManager.highImpactDiffs.Inc() }

func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }

func UpdateQueueSize(n int) { globalManager.queueSize.Set(float64(n)) }

func UpdateQueueUtilization(ratio float64) { globalManager.queueUtilization.Set(ratio) }

func RecordQueueEnqueue() { globalManager.queueEnqueues.Inc() }

func RecordQueueEnqueueError() { globalManager.queueEnqueueErrs.Inc() }

func RecordQueueDequeue() { globalManager.queueDequeues.Inc() }

func UpdateWorkerActive(n int) { globalManager.workerActive.Set(float64(n)) }

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPause.Observe(ms) }
