package authn

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts middleware decisions by rule decision and outcome.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers the authn collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "community",
			Subsystem: "authn",
			Name:      "decisions_total",
			Help:      "Authentication middleware outcomes by rule decision.",
		}, []string{"decision", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions)
	}
	return m
}

func (m *Metrics) observe(d Decision, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.String(), outcome).Inc()
}
