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
	// Key pool metrics
	Reservations      *prometheus.CounterVec
	ReservationErrors *prometheus.CounterVec
	PoolAvailable     *prometheus.GaugeVec
	StuckReleased     prometheus.Counter

	// Submission metrics
	SubmissionAttempts *prometheus.CounterVec
	SubmissionFailures *prometheus.CounterVec
	BlockhashFallbacks prometheus.Counter
	ConfirmLatency     *prometheus.HistogramVec

	// Referral metrics
	PaymentsRecorded     *prometheus.CounterVec
	PaymentsDeduplicated prometheus.Counter
	ReferrersBound       prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "meme_forge"
	}

	return &Metrics{
		// Key pool metrics
		Reservations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypool",
			Name:      "reservations_total",
			Help:      "Total number of key reservations by category and outcome",
		}, []string{"category", "outcome"}),
		ReservationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypool",
			Name:      "reservation_errors_total",
			Help:      "Total number of reservation errors by type",
		}, []string{"error_type"}),
		PoolAvailable: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keypool",
			Name:      "available_keys",
			Help:      "Number of available keys by category",
		}, []string{"category"}),
		StuckReleased: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keypool",
			Name:      "stuck_reservations_released_total",
			Help:      "Total number of stuck reservations released",
		}),

		// Submission metrics
		SubmissionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "attempts_total",
			Help:      "Total number of submission attempts by flow",
		}, []string{"flow"}),
		SubmissionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "failures_total",
			Help:      "Total number of submission failures by flow and class",
		}, []string{"flow", "class"}),
		BlockhashFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "blockhash_fallbacks_total",
			Help:      "Total number of blockhash fetches served by the fallback source",
		}),
		ConfirmLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "confirmation_latency_seconds",
			Help:      "Transaction confirmation latency in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"flow"}),

		// Referral metrics
		PaymentsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "payments_recorded_total",
			Help:      "Total number of settlement rows recorded by payment type",
		}, []string{"payment_type"}),
		PaymentsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "payments_deduplicated_total",
			Help:      "Total number of settlement calls absorbed by idempotency",
		}),
		ReferrersBound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "referral",
			Name:      "referrers_bound_total",
			Help:      "Total number of successful referrer bindings",
		}),

		// RPC metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of Solana RPC call errors by method",
		}, []string{"method"}),

		// Database metrics
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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordReservation records a key reservation outcome.
func RecordReservation(category, outcome string) {
	DefaultMetrics.Reservations.WithLabelValues(category, outcome).Inc()
}

// RecordSubmissionAttempt increments the attempt counter for a flow.
func RecordSubmissionAttempt(flow string) {
	DefaultMetrics.SubmissionAttempts.WithLabelValues(flow).Inc()
}

// RecordSubmissionFailure records a classified submission failure.
func RecordSubmissionFailure(flow, class string) {
	DefaultMetrics.SubmissionFailures.WithLabelValues(flow, class).Inc()
}

// RecordBlockhashFallback increments the fallback counter.
func RecordBlockhashFallback() {
	DefaultMetrics.BlockhashFallbacks.Inc()
}

// RecordPayment records a settlement row by type, or a dedup hit.
func RecordPayment(paymentType string, inserted bool) {
	if inserted {
		DefaultMetrics.PaymentsRecorded.WithLabelValues(paymentType).Inc()
		return
	}
	DefaultMetrics.PaymentsDeduplicated.Inc()
}

// RecordReservationError counts an unexpected reservation failure.
func RecordReservationError(errorType string) {
	DefaultMetrics.ReservationErrors.WithLabelValues(errorType).Inc()
}

// RecordConfirmLatency records how long a confirmed transaction took.
func RecordConfirmLatency(flow string, seconds float64) {
	DefaultMetrics.ConfirmLatency.WithLabelValues(flow).Observe(seconds)
}

// RecordRPCCall records RPC call latency and counts failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdatePoolAvailable updates the available-keys gauge for a category.
func UpdatePoolAvailable(category string, n int64) {
	DefaultMetrics.PoolAvailable.WithLabelValues(category).Set(float64(n))
}
