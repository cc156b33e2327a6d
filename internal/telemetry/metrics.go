// Package telemetry exposes the daemon's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the sync coordinator feeds.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	CachedShifts  prometheus.Gauge
	EvictedShifts prometheus.Counter
}

// New registers the roster metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "fetch_attempts_total",
			Help:      "Remote fetch attempts by operation and resulting state.",
		}, []string{"operation", "state"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "roster",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		CachedShifts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roster",
			Name:      "cached_shifts",
			Help:      "Number of shifts currently held in the public cache.",
		}),
		EvictedShifts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roster",
			Name:      "evicted_shifts_total",
			Help:      "Shifts removed by retention cleanup.",
		}),
	}
}

// RecordFetch counts one remote fetch attempt.
func (m *Metrics) RecordFetch(operation, state string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(operation, state).Inc()
}

// ObserveSync records the duration of one sync operation in seconds.
func (m *Metrics) ObserveSync(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.SyncDuration.WithLabelValues(operation).Observe(seconds)
}

// SetCachedShifts updates the cache size gauge.
func (m *Metrics) SetCachedShifts(n int) {
	if m == nil {
		return
	}
	m.CachedShifts.Set(float64(n))
}

// AddEvicted counts shifts removed by retention cleanup.
func (m *Metrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EvictedShifts.Add(float64(n))
}
