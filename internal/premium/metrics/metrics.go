package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for premium status resolution. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Final verdicts by action and the signal that decided them
	Resolutions *prometheus.CounterVec

	// Authority lookups by classification
	AuthorityLookups *prometheus.CounterVec

	AuthorityLatency prometheus.Histogram

	// Cache lookups by result: hit, miss, error
	CacheLookups *prometheus.CounterVec

	// 1 while the authority circuit breaker is open
	CircuitOpen prometheus.Gauge
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "premiumblocker_resolutions_total",
			Help: "Connection attempts resolved, by action and deciding source",
		}, []string{"action", "source"}),

		AuthorityLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "premiumblocker_authority_lookups_total",
			Help: "Identity authority lookups by classification",
		}, []string{"classification"}),

		AuthorityLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "premiumblocker_authority_lookup_duration_seconds",
			Help:    "Duration of identity authority lookups",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "premiumblocker_cache_lookups_total",
			Help: "Status cache lookups by result",
		}, []string{"result"}),

		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "premiumblocker_authority_circuit_open",
			Help: "Whether the identity authority circuit breaker is open",
		}),
	}
}

// IncrementResolution records one resolved attempt.
func (m *Metrics) IncrementResolution(action, source string) {
	if m != nil {
		m.Resolutions.WithLabelValues(action, source).Inc()
	}
}

// ObserveLookup records an authority lookup and its duration.
func (m *Metrics) ObserveLookup(classification string, d time.Duration) {
	if m != nil {
		m.AuthorityLookups.WithLabelValues(classification).Inc()
		m.AuthorityLatency.Observe(d.Seconds())
	}
}

// IncrementLookup counts a lookup that never reached the network, such as
// one skipped by an open circuit. No latency is recorded.
func (m *Metrics) IncrementLookup(classification string) {
	if m != nil {
		m.AuthorityLookups.WithLabelValues(classification).Inc()
	}
}

// IncrementCacheLookup records a cache hit, miss or error.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// SetCircuitOpen mirrors the breaker state.
func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
