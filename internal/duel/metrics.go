package duel

import (
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	transitions *prometheus.CounterVec
	timeouts    prometheus.Counter
}

// NewMetrics builds the duel collectors and registers them on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slduel",
			Subsystem: "duel",
			Name:      "transitions_total",
			Help:      "Duel status transitions applied, by target status.",
		}, []string{"status"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slduel",
			Subsystem: "duel",
			Name:      "timeouts_total",
			Help:      "Active duels resolved by their deadline.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.timeouts)
	}
	return m
}

func (m *Metrics) transition(status entities.DuelStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}
