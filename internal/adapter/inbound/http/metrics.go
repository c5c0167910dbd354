// Package http provides the HTTP front of the admission gate.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/admission/internal/service"
)

// Metrics holds all Prometheus metrics for the admission gate.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	StoreKeys       prometheus.Gauge
	ReapedTotal     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/throttled/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "admission",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "decisions_total",
				Help:      "Total rate limit decisions",
			},
			[]string{"preset", "result"}, // result=allowed/limited
		),
		StoreKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "admission",
				Name:      "store_keys",
				Help:      "Number of tracked rate limit keys after the last sweep",
			},
		),
		ReapedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "reaped_total",
				Help:      "Total expired rate limit keys removed by the reaper",
			},
		),
	}
}

// ObserveDecision counts one admission decision.
func (m *Metrics) ObserveDecision(preset string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "limited"
	}
	m.Decisions.WithLabelValues(preset, result).Inc()
}

// ObserveSweep records the outcome of one store sweep.
func (m *Metrics) ObserveSweep(removed, remaining int) {
	m.ReapedTotal.Add(float64(removed))
	m.StoreKeys.Set(float64(remaining))
}

var _ service.AdmissionObserver = (*Metrics)(nil)
