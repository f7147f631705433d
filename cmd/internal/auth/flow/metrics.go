package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times auth operations by outcome.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the flow collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "community",
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Login, refresh and logout results by outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "community",
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Latency of auth operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration)
	}
	return m
}

func (m *Metrics) observe(op, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(took.Seconds())
}
