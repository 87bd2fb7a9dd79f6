// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, route and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appride_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appride_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RequestsInFlight is the number of requests being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "appride_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	// ReservationOps counts reservation engine calls by operation and
	// outcome (ok, not_found, invalid_state, conflict, forbidden, retryable,
	// error).
	ReservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appride_reservation_operations_total",
			Help: "Reservation engine operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	// SeatAdjustments counts seats released (+1) and occupied (-1).
	SeatAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appride_seat_adjustments_total",
			Help: "Seat counter adjustments applied by the reservation engine",
		},
		[]string{"direction"},
	)

	// EventPublishFailures counts reservation events that could not be
	// delivered to the broker.
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appride_event_publish_failures_total",
			Help: "Reservation events the broker did not accept",
		},
	)
)

// RecordSeatDelta adds a seat adjustment to SeatAdjustments.
func RecordSeatDelta(delta int) {
	switch {
	case delta > 0:
		SeatAdjustments.WithLabelValues("release").Add(float64(delta))
	case delta < 0:
		SeatAdjustments.WithLabelValues("occupy").Add(float64(-delta))
	}
}
