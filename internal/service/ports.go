package service

import (
	"context"

	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/queue"
)

// Store is the persistence the trip and reservation services run on.
// Mutations of seat counters only happen through Tx inside InTx.
type Store interface {
	// InTx runs fn inside one database transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ReservationTripID returns the trip a reservation belongs to without
	// taking any lock.  A reservation never changes trip, so the value is
	// safe to use for lock ordering.
	ReservationTripID(ctx context.Context, reservationID uint64) (uint64, error)

	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)

	GetTrip(ctx context.Context, id uint64) (*model.Trip, error)
	ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	CreateTrip(ctx context.Context, t *model.Trip) error
	DeleteTrip(ctx context.Context, id uint64) error
}

// Tx is the set of row-level operations available inside a transaction.
// Callers lock the trip row before the reservation row, always.
type Tx interface {
	// LockTrip returns the trip with an exclusive row lock held until the
	// transaction ends.
	LockTrip(ctx context.Context, tripID uint64) (*model.Trip, error)
	// LockReservation returns the reservation with an exclusive row lock.
	LockReservation(ctx context.Context, reservationID uint64) (*model.Reservation, error)
	// HasActiveReservation reports whether the student holds an active
	// reservation on the trip other than excludeID (0 excludes nothing).
	HasActiveReservation(ctx context.Context, tripID, studentID, excludeID uint64) (bool, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	DeleteReservation(ctx context.Context, reservationID uint64) error
	// AdjustAvailableSeats adds delta to the trip's available seats.  The
	// trip must already be locked by this transaction.
	AdjustAvailableSeats(ctx context.Context, tripID uint64, delta int) error
	// SetCapacity stores a new total and recomputes available seats from
	// the live active reservation count.  The result is not clamped.
	SetCapacity(ctx context.Context, tripID uint64, totalSeats int) error
	// UpdateTrip writes route, schedule and status fields.
	UpdateTrip(ctx context.Context, t *model.Trip) error
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// EventPublisher delivers reservation lifecycle events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }
