package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on chat_messages_dropped_total.
const (
	dropMalformed   = "malformed"
	dropRateLimited = "rate_limited"
)

// Metrics holds the relay's Prometheus collectors. Each Server owns its own
// prometheus.Registry so tests can run several servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	rooms            prometheus.Gauge
	connections      prometheus.Gauge
	received         prometheus.Counter
	dropped          *prometheus.CounterVec
	deliveries       prometheus.Counter
	deliveryFailures prometheus.Counter
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "rooms",
			Help:      "Rooms currently held by the registry.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "connections",
			Help:      "Open chat connections joined to a room.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_received_total",
			Help:      "Inbound frames accepted for broadcast.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_dropped_total",
			Help:      "Inbound frames discarded before broadcast.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "deliveries_total",
			Help:      "Payloads handed to a room member.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "delivery_failures_total",
			Help:      "Payloads a room member could not accept.",
		}),
	}

	m.registry.MustRegister(
		m.rooms,
		m.connections,
		m.received,
		m.dropped,
		m.deliveries,
		m.deliveryFailures,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The methods below tolerate a nil receiver so Room and Registry can be used
// without metrics in tests.

func (m *Metrics) roomCreated() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) connectionJoined() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionLeft() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) messageReceived() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) messageDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) delivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.deliveries.Inc()
	} else {
		m.deliveryFailures.Inc()
	}
}
