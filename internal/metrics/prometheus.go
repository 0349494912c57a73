package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the upgrade checker
type PrometheusMetrics struct {
	// Connection and RPC metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec
	RPCRetriesTotal       *prometheus.CounterVec

	// Transaction metrics
	TransactionsTotal *prometheus.CounterVec

	// Migration metrics
	HoldersProcessedTotal *prometheus.CounterVec
	DiscrepanciesTotal    prometheus.Counter
	EligibleAmount        prometheus.Gauge
	RunsTotal             *prometheus.CounterVec
	StageDuration         *prometheus.HistogramVec

	// Database metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationDuration prometheus.Histogram

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_connection_errors_total",
				Help: "Total number of connection errors to JSON-RPC nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_rpc_requests_total",
				Help: "Total number of JSON-RPC requests",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upgrade_check_rpc_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		RPCRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_rpc_retries_total",
				Help: "Total number of retried JSON-RPC requests",
			},
			[]string{"method"},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_transactions_total",
				Help: "Total number of transactions sent",
			},
			[]string{"method", "status"},
		),

		HoldersProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_holders_processed_total",
				Help: "Total number of holder addresses processed",
			},
			[]string{"outcome"},
		),

		DiscrepanciesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "upgrade_check_discrepancies_total",
				Help: "Total number of holders whose migrated balance differs from the expected amount",
			},
		),

		EligibleAmount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "upgrade_check_eligible_amount_tokens",
				Help: "Eligible vesting amount accumulated by the current run, in whole tokens",
			},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_runs_total",
				Help: "Total number of verification runs",
			},
			[]string{"status"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upgrade_check_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_database_operations_total",
				Help: "Total number of run store operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upgrade_check_database_operation_duration_seconds",
				Help:    "Duration of run store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_notifications_total",
				Help: "Total number of run notifications sent",
			},
			[]string{"channel", "status"},
		),

		NotificationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "upgrade_check_notification_duration_seconds",
				Help:    "Duration of run notification delivery including retries",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upgrade_check_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upgrade_check_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "upgrade_check_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "upgrade_check_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "upgrade_check_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRPCRetry records a retried RPC request
func (m *PrometheusMetrics) RecordRPCRetry(method string) {
	m.RPCRetriesTotal.WithLabelValues(method).Inc()
}

// RecordTransaction records a sent transaction
func (m *PrometheusMetrics) RecordTransaction(method, status string) {
	m.TransactionsTotal.WithLabelValues(method, status).Inc()
}

// RecordHolderProcessed records a processed holder address
func (m *PrometheusMetrics) RecordHolderProcessed(outcome string) {
	m.HoldersProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordDiscrepancy records a migration discrepancy
func (m *PrometheusMetrics) RecordDiscrepancy() {
	m.DiscrepanciesTotal.Inc()
}

// UpdateEligibleAmount sets the eligible amount gauge
func (m *PrometheusMetrics) UpdateEligibleAmount(tokens float64) {
	m.EligibleAmount.Set(tokens)
}

// RecordRun records a finished run
func (m *PrometheusMetrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records how long a pipeline stage took
func (m *PrometheusMetrics) RecordStageDuration(stage string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a run store operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotification records a delivered or failed notification
func (m *PrometheusMetrics) RecordNotification(channel, status string, duration time.Duration) {
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
	m.NotificationDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
