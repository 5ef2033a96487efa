package hub

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	evictions   prometheus.Counter
	queued      prometheus.Counter
}

// NewMetrics builds the hub collectors and registers them on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slduel",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Live websocket channels.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slduel",
			Subsystem: "hub",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slduel",
			Subsystem: "hub",
			Name:      "heartbeat_evictions_total",
			Help:      "Channels closed for missing a heartbeat.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slduel",
			Subsystem: "hub",
			Name:      "offline_enqueued_total",
			Help:      "Messages queued for users with no live channel.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.evictions, m.queued)
	}
	return m
}

func (m *Metrics) addConnections(delta float64) {
	if m != nil {
		m.connections.Add(delta)
	}
}

func (m *Metrics) addRooms(delta float64) {
	if m != nil {
		m.rooms.Add(delta)
	}
}

func (m *Metrics) evicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) enqueued() {
	if m != nil {
		m.queued.Inc()
	}
}
