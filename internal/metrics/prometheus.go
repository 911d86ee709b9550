package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for SoroScan
type PrometheusMetrics struct {
	// Ingestion metrics
	EventsIngestedTotal    *prometheus.CounterVec
	ActiveTrackedContracts prometheus.Gauge

	// Task metrics
	TaskDuration      *prometheus.HistogramVec
	TaskFailuresTotal *prometheus.CounterVec

	// Alert metrics
	AlertsDispatchedTotal *prometheus.CounterVec
	AlertDispatchDuration *prometheus.HistogramVec
	RulesMatchedTotal     *prometheus.CounterVec

	// Quota metrics
	QuotaDecisionsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_events_ingested_total",
				Help: "Total number of contract events ingested",
			},
			[]string{"contract_id", "network", "event_type"},
		),

		ActiveTrackedContracts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "soroscan_tracked_contracts_active",
				Help: "Number of currently active tracked contracts",
			},
		),

		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soroscan_task_duration_seconds",
				Help:    "Duration of background tasks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task_name"},
		),

		TaskFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_task_failures_total",
				Help: "Total number of failed background tasks",
			},
			[]string{"task_name"},
		),

		AlertsDispatchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_alerts_dispatched_total",
				Help: "Total number of alert dispatch attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		AlertDispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soroscan_alert_dispatch_duration_seconds",
				Help:    "Duration of alert channel deliveries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		RulesMatchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_rules_matched_total",
				Help: "Total number of alert rules matched against events",
			},
			[]string{"contract_id"},
		),

		QuotaDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_quota_decisions_total",
				Help: "Total number of quota enforcement decisions",
			},
			[]string{"tier", "allowed"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soroscan_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soroscan_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soroscan_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordEventIngested records a newly ingested event
func (m *PrometheusMetrics) RecordEventIngested(contractID, network, eventType string) {
	m.EventsIngestedTotal.WithLabelValues(contractID, network, eventType).Inc()
}

// UpdateActiveTrackedContracts updates the active contracts gauge
func (m *PrometheusMetrics) UpdateActiveTrackedContracts(count int64) {
	m.ActiveTrackedContracts.Set(float64(count))
}

// RecordTaskDuration records the duration of a background task
func (m *PrometheusMetrics) RecordTaskDuration(taskName string, duration time.Duration) {
	m.TaskDuration.WithLabelValues(taskName).Observe(duration.Seconds())
}

// RecordTaskFailure records a failed background task
func (m *PrometheusMetrics) RecordTaskFailure(taskName string) {
	m.TaskFailuresTotal.WithLabelValues(taskName).Inc()
}

// RecordAlertDispatched records a dispatch attempt outcome
func (m *PrometheusMetrics) RecordAlertDispatched(channel, outcome string, duration time.Duration) {
	m.AlertsDispatchedTotal.WithLabelValues(channel, outcome).Inc()
	m.AlertDispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordRulesMatched records matched rules for a contract
func (m *PrometheusMetrics) RecordRulesMatched(contractID string, count int) {
	m.RulesMatchedTotal.WithLabelValues(contractID).Add(float64(count))
}

// RecordQuotaDecision records a quota enforcement decision
func (m *PrometheusMetrics) RecordQuotaDecision(tier string, allowed bool) {
	allowedStr := "false"
	if allowed {
		allowedStr = "true"
	}
	m.QuotaDecisionsTotal.WithLabelValues(tier, allowedStr).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
