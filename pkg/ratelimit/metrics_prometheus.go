package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// Provided metrics:
//   - Decision counters by bucket and status (allowed/denied)
//   - Check duration histograms by bucket, covering store round trips
//   - Store error counters by operation
//
// All metrics use a custom registry for better testability and isolation.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// decisionsTotal tracks admission decisions.
	// Labels:
	//   - bucket: Normalized bucket name
	//   - status: "allowed" or "denied"
	decisionsTotal *prometheus.CounterVec

	// checkDuration tracks the duration of CheckAndRecord calls.
	// Labels:
	//   - bucket: Normalized bucket name
	//
	// Buckets cover the expected range for a store round trip or two:
	// sub-millisecond for in-memory stores up to 1s for degraded networks.
	checkDuration *prometheus.HistogramVec

	// storeErrorsTotal tracks event store failures.
	// Labels:
	//   - op: Store operation name (record_event, count_events,
	//     record_if_under_limit)
	storeErrorsTotal *prometheus.CounterVec

	// activeKeys tracks the number of event keys currently held by the
	// store, as reported by periodic maintenance sweeps.
	activeKeys prometheus.Gauge
}

// NewPrometheusMetrics creates a PrometheusMetrics instance with a custom
// registry.
//
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids metric conflicts when running several limiters.
// Expose it with promhttp.HandlerFor(metrics.Registry(), ...).
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Admission decisions by bucket and status",
		},
		[]string{"bucket", "status"},
	)

	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limit_check_duration_seconds",
			Help:    "Duration of check-and-record calls including store round trips",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"bucket"},
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Event store failures by operation",
		},
		[]string{"op"},
	)

	activeKeys := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limit_active_keys",
			Help: "Event keys currently tracked by the store",
		},
	)

	registry.MustRegister(
		decisionsTotal,
		checkDuration,
		storeErrorsTotal,
		activeKeys,
	)

	return &PrometheusMetrics{
		registry:         registry,
		decisionsTotal:   decisionsTotal,
		checkDuration:    checkDuration,
		storeErrorsTotal: storeErrorsTotal,
		activeKeys:       activeKeys,
	}
}

// Registry returns the Prometheus registry containing all limiter metrics.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAllowed records an admitted request for a bucket.
func (m *PrometheusMetrics) RecordAllowed(bucket string) {
	m.decisionsTotal.WithLabelValues(bucket, "allowed").Inc()
}

// RecordDenied records a denied request for a bucket.
func (m *PrometheusMetrics) RecordDenied(bucket string) {
	m.decisionsTotal.WithLabelValues(bucket, "denied").Inc()
}

// RecordCheckDuration records the duration of one CheckAndRecord call.
func (m *PrometheusMetrics) RecordCheckDuration(bucket string, d time.Duration) {
	m.checkDuration.WithLabelValues(bucket).Observe(d.Seconds())
}

// RecordStoreError records a store failure for the given operation.
func (m *PrometheusMetrics) RecordStoreError(op string) {
	m.storeErrorsTotal.WithLabelValues(op).Inc()
}

// SetActiveKeys reports the number of event keys currently tracked by the
// store. Intended to be called from a periodic maintenance sweep; it is not
// part of the Metrics interface because only key-counting stores can feed it.
func (m *PrometheusMetrics) SetActiveKeys(n int) {
	m.activeKeys.Set(float64(n))
}
