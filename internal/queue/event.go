// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumer that carry them.
package queue

// Event kinds.  Each kind is also the routing key on the reservations
// exchange.
const (
	ReservationCreated = "reservation.created"
	ReservationUpdated = "reservation.updated"
	ReservationDeleted = "reservation.deleted"
)

// ReservationEvent is published after a reservation mutation commits.  It
// carries the seat counter as seen inside the transaction so downstream
// consumers can audit seat accounting without querying the database.
type ReservationEvent struct {
	Kind           string `json:"kind"`
	ReservationID  uint64 `json:"reservation_id"`
	TripID         uint64 `json:"trip_id"`
	StudentID      uint64 `json:"student_id"`
	ActorID        uint64 `json:"actor_id"`
	ActorRole      string `json:"actor_role"`
	FromStatus     string `json:"from_status,omitempty"`
	ToStatus       string `json:"to_status,omitempty"`
	SeatDelta      int    `json:"seat_delta"`
	AvailableSeats int    `json:"available_seats"`
	OccurredAt     string `json:"occurred_at"`
}
