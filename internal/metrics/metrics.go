// Package metrics holds the process-wide Prometheus collectors. Everything
// registers on the default registry and is served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slotbook_delivery_queue_depth",
		Help: "Number of sends waiting in the delivery queue.",
	})

	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotbook_gateway_sends_total",
		Help: "Gateway send attempts by result.",
	}, []string{"result"})

	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slotbook_gateway_send_duration_seconds",
		Help:    "Latency of gateway send attempts.",
		Buckets: prometheus.DefBuckets,
	})

	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotbook_bookings_total",
		Help: "Booking attempts by outcome.",
	}, []string{"outcome"})

	RemindersDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotbook_reminders_dispatched_total",
		Help: "Reminders handed to the dispatcher by kind.",
	}, []string{"kind"})
)
