package filter

import "github.com/prometheus/client_golang/prometheus"

// Metrics provides Prometheus metrics for the filter.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of handled events by outcome",
		}, []string{"outcome"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.decisionsTotal)
	}

	return m
}

// IncDecision increments the decision counter for an outcome.
func (m *Metrics) IncDecision(outcome Outcome) {
	m.decisionsTotal.WithLabelValues(outcome.String()).Inc()
}
