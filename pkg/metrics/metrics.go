// Package metrics exposes the Prometheus collectors of the chat gateway.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Submitted        *prometheus.CounterVec
	Rejected         *prometheus.CounterVec
	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter
	Connections      prometheus.Gauge
	Subscriptions    prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duochat",
			Name:      "messages_submitted_total",
			Help:      "Messages persisted by the ingest pipeline, by channel kind.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duochat",
			Name:      "messages_rejected_total",
			Help:      "Submits that failed, by reason.",
		}, []string{"reason"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duochat",
			Name:      "deliveries_total",
			Help:      "Messages enqueued to a subscriber.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duochat",
			Name:      "delivery_failures_total",
			Help:      "Messages that could not be enqueued to a subscriber.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duochat",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duochat",
			Name:      "subscriptions",
			Help:      "Live connection to channel subscriptions.",
		}),
	}
	reg.MustRegister(m.Submitted, m.Rejected, m.Deliveries, m.DeliveryFailures, m.Connections, m.Subscriptions)
	return m
}

func (m *Metrics) MessageSubmitted(kind string) {
	if m == nil {
		return
	}
	m.Submitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) MessageRejected(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivered(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Deliveries.Inc()
		return
	}
	m.DeliveryFailures.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) SubscriptionsChanged(delta int) {
	if m == nil {
		return
	}
	m.Subscriptions.Add(float64(delta))
}
