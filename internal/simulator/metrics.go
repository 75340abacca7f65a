package simulator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the simulator's Prometheus collectors on a private registry
// so tests can run multiple servers without collisions.
type metrics struct {
	registry        *prometheus.Registry
	eventsPublished *prometheus.CounterVec
	activeStreams   prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskwatch_sim",
		Name:      "events_published_total",
		Help:      "Workflow events emitted by simulated runs.",
	}, []string{"agent_id"})

	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskwatch_sim",
		Name:      "active_streams",
		Help:      "Currently connected SSE subscribers.",
	})

	registry.MustRegister(eventsPublished, activeStreams)
	return &metrics{
		registry:        registry,
		eventsPublished: eventsPublished,
		activeStreams:   activeStreams,
	}
}
