// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transition metrics
	TransitionsTotal  *prometheus.CounterVec
	TransitionLatency *prometheus.HistogramVec

	// Sale state
	VaultBalance  *prometheus.GaugeVec
	TotalSold     *prometheus.GaugeVec
	EscrowBalance *prometheus.GaugeVec

	// Store metrics
	StoreConflicts  *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Event delivery
	EventsPublished     *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	WSSubscribers       prometheus.Gauge
	LastCommitTimestamp prometheus.Gauge

	// RPC metrics
	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "crowdsale_ledger"
	}

	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "transitions_total",
			Help:      "Total number of state transitions by operation and result",
		}, []string{"op", "result"}),
		TransitionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "transition_latency_seconds",
			Help:      "State transition latency in seconds, including store commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		VaultBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "vault_balance",
			Help:      "Vault balance in token base units after the last commit",
		}, []string{"sale"}),
		TotalSold: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "total_sold",
			Help:      "Total token base units sold",
		}, []string{"sale"}),
		EscrowBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "escrow_balance",
			Help:      "Native base units held in escrow for the authority",
		}, []string{"sale"}),

		StoreConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Total number of optimistic transaction conflicts by backend",
		}, []string{"backend"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of committed events delivered by sink",
		}, []string{"sink"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed event deliveries by sink",
		}, []string{"sink"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ws_subscribers",
			Help:      "Current number of websocket subscribers",
		}),
		LastCommitTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_commit_timestamp",
			Help:      "Unix timestamp of the last committed transition",
		}),

		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests by method and status",
		}, []string{"method", "status"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_latency_seconds",
			Help:      "JSON-RPC request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransition records the outcome and latency of one transition.
// result is "committed" or the error name.
func RecordTransition(op, result string, seconds float64) {
	DefaultMetrics.TransitionsTotal.WithLabelValues(op, result).Inc()
	DefaultMetrics.TransitionLatency.WithLabelValues(op).Observe(seconds)
}

// UpdateSaleState sets the per-sale gauges.
func UpdateSaleState(sale string, vault, sold, escrow uint64) {
	DefaultMetrics.VaultBalance.WithLabelValues(sale).Set(float64(vault))
	DefaultMetrics.TotalSold.WithLabelValues(sale).Set(float64(sold))
	DefaultMetrics.EscrowBalance.WithLabelValues(sale).Set(float64(escrow))
}

// RecordCommit updates the last commit timestamp gauge.
func RecordCommit(unixSeconds int64) {
	DefaultMetrics.LastCommitTimestamp.Set(float64(unixSeconds))
}

// RecordStoreConflict increments the conflict counter of a backend.
func RecordStoreConflict(backend string) {
	DefaultMetrics.StoreConflicts.WithLabelValues(backend).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordEventPublished records one event delivery attempt.
func RecordEventPublished(sink string, err error) {
	if err != nil {
		DefaultMetrics.EventPublishErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink).Inc()
}

// SetWSSubscribers sets the websocket subscriber gauge.
func SetWSSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}

// RecordRPCRequest records a JSON-RPC request.
func RecordRPCRequest(method, status string, seconds float64) {
	DefaultMetrics.RPCRequests.WithLabelValues(method, status).Inc()
	DefaultMetrics.RPCLatency.WithLabelValues(method).Observe(seconds)
}
