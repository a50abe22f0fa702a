// Package metrics provides Prometheus metrics for the tic-tac-toe arbiter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are milliseconds; store round trips are expected well under 50ms.
var latencyBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // bucket layout

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Commands
	commandsReceived   *prometheus.CounterVec
	commandsProcessed  *prometheus.CounterVec
	commandsDuplicate  prometheus.Counter
	commandLatency     *prometheus.HistogramVec
	commandsRedelivery prometheus.Counter

	// Games and matchmaking
	gamesStarted  prometheus.Counter
	gamesFinished *prometheus.CounterVec
	matchmaking   *prometheus.CounterVec

	// Store
	transactions         *prometheus.CounterVec
	transactionConflicts *prometheus.CounterVec
	storeLatency         *prometheus.HistogramVec
	storeErrors          *prometheus.CounterVec
	storeShardCount      prometheus.Gauge
	storeRecordsPerShard *prometheus.GaugeVec
	storeRecordsTotal    prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Reconciler
	reconcileSweeps   prometheus.Counter
	pairingsRepaired  prometheus.Counter
	reconcileFailures prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tictac",
		subsystem:        "arbiter",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.commandsReceived = m.counterVec("commands_received_total", "Commands accepted for delivery by kind", "kind")
	m.commandsProcessed = m.counterVec("commands_processed_total", "Commands dispatched by kind and result", "kind", "result")
	m.commandsDuplicate = m.counter("commands_duplicate_total", "Redelivered commands dropped because they were already handled")
	m.commandLatency = m.histogramVec("command_latency_milliseconds", "Dispatch latency per command kind", "kind")
	m.commandsRedelivery = m.counter("commands_redelivered_total", "Unacknowledged commands re-enqueued by the reconciler")

	m.gamesStarted = m.counter("games_started_total", "Game records created after a pairing")
	m.gamesFinished = m.counterVec("games_finished_total", "Games that reached an outcome", "outcome")
	m.matchmaking = m.counterVec("matchmaking_total", "Match attempts by result", "result")

	m.transactions = m.counterVec("store_transactions_total", "Atomic conditional updates by record and result", "record", "result")
	m.transactionConflicts = m.counterVec("store_transaction_conflicts_total", "Optimistic conflicts that forced a transform retry", "record")
	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds", "Store operation latency", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "op")
	m.storeShardCount = m.gauge("store_shard_count", "Shards in the in-memory record store")
	m.storeRecordsPerShard = m.gaugeVec("store_records_per_shard", "Records held per in-memory shard", "shard")
	m.storeRecordsTotal = m.gauge("store_records_total", "Records held by the in-memory store")

	m.queueSize = m.gauge("queue_size", "Deliveries waiting in the inbound queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum deliveries the inbound queue holds")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "queue_size / queue_capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Deliveries enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Deliveries handed to workers")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Deliveries refused by the queue")

	m.workerCount = m.gauge("worker_count", "Configured dispatch workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently dispatching a command")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Dispatch throughput over the last interval")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one delivery")
	m.workerErrors = m.counter("worker_errors_total", "Deliveries that failed with a store error")

	m.reconcileSweeps = m.counter("reconcile_sweeps_total", "Reconciler sweeps run")
	m.pairingsRepaired = m.counter("reconcile_pairings_repaired_total", "Orphaned matching players returned to matchmaking")
	m.reconcileFailures = m.counter("reconcile_failures_total", "Reconciler sweeps that hit a store error")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that ended in an error", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

// Command metrics.

// RecordCommandReceived counts a command accepted for delivery.
func RecordCommandReceived(kind string) {
	globalManager.commandsReceived.WithLabelValues(kind).Inc()
}

// RecordCommandProcessed counts a dispatched command by its result
// (ok, rejected, ignored, failed).
func RecordCommandProcessed(kind, result string) {
	globalManager.commandsProcessed.WithLabelValues(kind, result).Inc()
}

// RecordCommandDuplicate counts a redelivery dropped by the deduper.
func RecordCommandDuplicate() {
	globalManager.commandsDuplicate.Inc()
}

// RecordCommandLatency observes dispatch latency.
func RecordCommandLatency(kind string, latencyMs float64) {
	globalManager.commandLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordCommandRedelivered counts a command re-enqueued by the reconciler.
func RecordCommandRedelivered() {
	globalManager.commandsRedelivery.Inc()
}

// Game metrics.

// RecordGameStarted counts a created game record.
func RecordGameStarted() {
	globalManager.gamesStarted.Inc()
}

// RecordGameFinished counts a game reaching outcome.
func RecordGameFinished(outcome string) {
	globalManager.gamesFinished.WithLabelValues(outcome).Inc()
}

// RecordMatchmaking counts a match attempt (parked, paired, self_rejected).
func RecordMatchmaking(result string) {
	globalManager.matchmaking.WithLabelValues(result).Inc()
}

// Store metrics.

// RecordTransaction counts a finished transaction (commit, abort, error).
func RecordTransaction(record, result string) {
	globalManager.transactions.WithLabelValues(record, result).Inc()
}

// RecordTransactionConflict counts one optimistic retry.
func RecordTransactionConflict(record string) {
	globalManager.transactionConflicts.WithLabelValues(record).Inc()
}

// RecordStoreLatency observes one store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// UpdateStoreShardCount sets the number of in-memory shards.
func UpdateStoreShardCount(count int) {
	globalManager.storeShardCount.Set(float64(count))
}

// UpdateStoreRecordsPerShard sets the record count for one shard.
func UpdateStoreRecordsPerShard(shard string, count int) {
	globalManager.storeRecordsPerShard.WithLabelValues(shard).Set(float64(count))
}

// UpdateStoreRecordsTotal sets the total record count.
func UpdateStoreRecordsTotal(count int) {
	globalManager.storeRecordsTotal.Set(float64(count))
}

// Queue metrics.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive adjusts the busy worker gauge by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// UpdateWorkerMessagesPerSecond sets dispatch throughput.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency observes one delivery.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed delivery.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Reconciler metrics.

// RecordReconcileSweep counts a sweep.
func RecordReconcileSweep() {
	globalManager.reconcileSweeps.Inc()
}

// RecordPairingRepaired counts an orphaned player sent back to matchmaking.
func RecordPairingRepaired() {
	globalManager.pairingsRepaired.Inc()
}

// RecordReconcileFailure counts a failed sweep.
func RecordReconcileFailure() {
	globalManager.reconcileFailures.Inc()
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
