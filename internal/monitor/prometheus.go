package monitor

import "github.com/prometheus/client_golang/prometheus"

// collectors mirror the monitor counters into a dedicated Prometheus
// registry served on /metrics.
type collectors struct {
	registry *prometheus.Registry

	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	messagesSent      prometheus.Counter
	messagesReceived  prometheus.Counter
	roomSubscriptions prometheus.Counter
	errorsTotal       *prometheus.CounterVec
}

func newCollectors() *collectors {
	c := &collectors{
		registry: prometheus.NewRegistry(),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rt_connections_total",
			Help: "Connections accepted since process start.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rt_connections_active",
			Help: "Currently registered connections.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rt_messages_sent_total",
			Help: "Envelopes written to client transports.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rt_messages_received_total",
			Help: "Inbound client frames handled.",
		}),
		roomSubscriptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rt_room_subscriptions_total",
			Help: "Room subscriptions accepted.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rt_errors_total",
			Help: "Errors recorded by the core, by kind.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.messagesSent,
		c.messagesReceived,
		c.roomSubscriptions,
		c.errorsTotal,
	)
	return c
}

// Registry exposes the collectors for the HTTP metrics handler.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.prom.registry
}
