package realtime

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	conns  prometheus.Gauge
	events *prometheus.CounterVec
}

// NewMetrics registers the realtime collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "community",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "community",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Server-pushed events by type and delivery result.",
		}, []string{"type", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.conns, m.events)
	}
	return m
}

func (m *Metrics) connected(delta float64) {
	if m != nil {
		m.conns.Add(delta)
	}
}

func (m *Metrics) event(typ, result string) {
	if m != nil {
		m.events.WithLabelValues(typ, result).Inc()
	}
}
