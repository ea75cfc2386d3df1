package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Client.
type Metrics struct {
	Published      prometheus.Counter
	Received       prometheus.Counter
	Resubscribed   prometheus.Counter
	Reconnects     prometheus.Counter
	ConnectionLost prometheus.Counter
	Dropped        *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	State          prometheus.Gauge
}

// NewMetrics creates the client collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "messages_published_total",
			Help:      "Messages acknowledged by the transport.",
		}),
		Received: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "messages_received_total",
			Help:      "Inbound messages handed to the registry.",
		}),
		Resubscribed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "resubscriptions_total",
			Help:      "Topics restored on the wire after a reconnect.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "reconnects_total",
			Help:      "Automatic reconnects completed by the transport.",
		}),
		ConnectionLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "connection_lost_total",
			Help:      "Established connections lost by the transport.",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "operations_dropped_total",
			Help:      "Operations dropped because the client was not connected.",
		}, []string{"op"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mqttkit",
			Name:      "operation_failures_total",
			Help:      "Failures delivered to the error sink.",
		}, []string{"op"}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mqttkit",
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
	}
}
