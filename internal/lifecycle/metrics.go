package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts lifecycles by how they ended.
type Metrics struct {
	finishedTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		finishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "textcheck",
			Subsystem: "lifecycle",
			Name:      "finished_total",
			Help:      "Checks that reached a terminal state, by state and failure kind.",
		}, []string{"state", "failure"}),
	}
	if reg != nil {
		reg.MustRegister(m.finishedTotal)
	}
	return m
}

func (m *Metrics) finished(state State, f *Failure) {
	if m == nil {
		return
	}
	kind := ""
	if f != nil {
		kind = string(f.Kind)
	}
	m.finishedTotal.WithLabelValues(string(state), kind).Inc()
}
