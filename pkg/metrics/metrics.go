// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// OffersSubmitted counts opening offers and counter-offers by the party that made them.
	OffersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offers_submitted_total",
			Help: "Offer records created",
		},
		[]string{"sender", "origin"},
	)

	// OfferResponses counts dispatched responses by kind and outcome.
	OfferResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_responses_total",
			Help: "Offer responses handled by the dispatcher",
		},
		[]string{"kind", "outcome"},
	)

	// DispatchDuration tracks how long a response takes to persist and publish.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offer_dispatch_duration_seconds",
			Help:    "Offer response dispatch duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"kind"},
	)

	// ConnectedClients tracks clients registered with the chat hub.
	ConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_clients_connected",
			Help: "Clients registered with the chat hub",
		},
		[]string{"transport"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordOffer counts a created offer record.
func RecordOffer(sender, origin string) {
	OffersSubmitted.WithLabelValues(sender, origin).Inc()
}

// RecordResponse records a dispatcher outcome.
func RecordResponse(kind, outcome string, duration float64) {
	OfferResponses.WithLabelValues(kind, outcome).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(duration)
}

func ClientConnected(transport string) {
	ConnectedClients.WithLabelValues(transport).Inc()
}

func ClientDisconnected(transport string) {
	ConnectedClients.WithLabelValues(transport).Dec()
}
