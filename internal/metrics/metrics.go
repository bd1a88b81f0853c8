// Package metrics provides Prometheus instrumentation for the realtime
// delivery layer. It exposes gauges for connection and group counts,
// counters for event throughput, and a histogram for publish latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active socket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections_total",
		Help: "Current number of active socket connections",
	})

	// GroupsTotal tracks the current number of recipient groups with at
	// least one joined connection.
	GroupsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_groups_total",
		Help: "Current number of recipient groups with members",
	})

	// EventsPublished counts publish attempts by event kind and outcome
	// ("ok" or "error").
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_published_total",
		Help: "Total number of event publish attempts",
	}, []string{"kind", "outcome"})

	// EventsDelivered counts individual fan-out writes to connections,
	// labeled by event kind. One published event may produce several
	// deliveries (multi-device) or zero (offline recipient).
	EventsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_delivered_total",
		Help: "Total number of per-connection event deliveries",
	}, []string{"kind"})

	// JoinsTotal counts successful join operations.
	JoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_joins_total",
		Help: "Total number of group join operations",
	})

	// PublishLatency records transport publish latency in seconds.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_publish_latency_seconds",
		Help:    "Transport publish latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		GroupsTotal,
		EventsPublished,
		EventsDelivered,
		JoinsTotal,
		PublishLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
