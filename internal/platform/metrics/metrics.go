package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing, so components can run without a registry in tests.
type Metrics struct {
	StorageOpDuration  *prometheus.HistogramVec
	ReadinessAttempts  *prometheus.CounterVec
	ReadinessState     prometheus.Gauge
	BootstrapSeeds     *prometheus.CounterVec
	CityOperations     *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StorageOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citygate_storage_operation_duration_seconds",
			Help:    "Latency of storage backend operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),
		ReadinessAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citygate_readiness_attempts_total",
			Help: "Backend liveness checks issued while waiting for startup readiness",
		}, []string{"outcome"}),
		ReadinessState: f.NewGauge(prometheus.GaugeOpts{
			Name: "citygate_readiness_state",
			Help: "Startup readiness gate state (0 polling, 1 ready, 2 failed)",
		}),
		BootstrapSeeds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citygate_bootstrap_seed_records_total",
			Help: "Seed records processed during bootstrap",
		}, []string{"outcome"}),
		CityOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citygate_city_operations_total",
			Help: "City upsert and fetch operations by outcome",
		}, []string{"operation", "outcome"}),
		HTTPRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citygate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ObserveStorageOp records the latency of a single backend call.
func (m *Metrics) ObserveStorageOp(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.StorageOpDuration.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
}

// IncrementReadinessAttempt counts one attempt of the startup loop.
func (m *Metrics) IncrementReadinessAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ReadinessAttempts.WithLabelValues(outcome).Inc()
}

// SetReadinessState publishes the gate state as a number.
func (m *Metrics) SetReadinessState(state int) {
	if m == nil {
		return
	}
	m.ReadinessState.Set(float64(state))
}

// IncrementBootstrapSeed counts a seed record by outcome.
func (m *Metrics) IncrementBootstrapSeed(outcome string) {
	if m == nil {
		return
	}
	m.BootstrapSeeds.WithLabelValues(outcome).Inc()
}

// IncrementCityOperation counts an upsert or fetch by outcome.
func (m *Metrics) IncrementCityOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.CityOperations.WithLabelValues(op, outcome).Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}
