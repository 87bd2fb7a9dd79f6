// Package service holds the transactional core of the application: the
// reservation engine that keeps trip seat counters consistent with the
// reservations held against them, and the trip service that owns capacity
// edits.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/metrics"
	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/queue"
)

// Pickup is an optional pickup location supplied at reservation time.
type Pickup struct {
	Lat *float64
	Lon *float64
}

// ReservationEngine creates, transitions and deletes reservations.
//
// Every mutation runs in one transaction that locks the trip row first and
// the reservation row second.  The trip lock serializes all reservation
// mutations of a trip, so the available-seat check, the duplicate check and
// the write commit together or not at all.
type ReservationEngine struct {
	store  Store
	events EventPublisher
	logger *log.Logger
	strict bool
}

// NewReservationEngine builds an engine over store.  A nil events publisher
// disables event delivery.  With strict set, status changes must follow the
// reservation state machine (see model.CanTransition); without it any edge
// is accepted and only seat accounting is enforced.
func NewReservationEngine(store Store, events EventPublisher, logger *log.Logger, strict bool) *ReservationEngine {
	if store == nil {
		panic("nil store passed to NewReservationEngine")
	}
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = log.New("reservations")
	}
	return &ReservationEngine{store: store, events: events, logger: logger, strict: strict}
}

// Create books one seat on tripID for the calling student.  The new
// reservation starts in REQUESTED.
func (e *ReservationEngine) Create(ctx context.Context, actor model.Identity, tripID uint64, pickup Pickup) (*model.Reservation, error) {
	if actor.Role != model.RoleStudent {
		return nil, e.done("create", fmt.Errorf("%w: only students can reserve seats", apperrors.ErrForbidden))
	}

	var (
		created   *model.Reservation
		available int
	)
	err := e.store.InTx(ctx, func(tx Tx) error {
		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("%w: trip %d does not exist", apperrors.ErrInvalidState, tripID)
			}
			return err
		}
		if trip.Status != model.TripPlanned {
			return fmt.Errorf("%w: trip %d is %s", apperrors.ErrInvalidState, tripID, trip.Status)
		}
		if trip.AvailableSeats <= 0 {
			return fmt.Errorf("%w: trip %d has no seats left", apperrors.ErrInvalidState, tripID)
		}

		dup, err := tx.HasActiveReservation(ctx, tripID, actor.ID, 0)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: student %d already holds an active reservation on trip %d", apperrors.ErrConflict, actor.ID, tripID)
		}

		r := &model.Reservation{
			TripID:    tripID,
			StudentID: actor.ID,
			PickupLat: pickup.Lat,
			PickupLon: pickup.Lon,
			Status:    model.ReservationRequested,
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		if err := tx.AdjustAvailableSeats(ctx, tripID, -1); err != nil {
			return err
		}
		created = r
		available = trip.AvailableSeats - 1
		return nil
	})
	if err != nil {
		return nil, e.done("create", err)
	}

	metrics.RecordSeatDelta(-1)
	e.publish(ctx, queue.ReservationEvent{
		Kind:           queue.ReservationCreated,
		ReservationID:  created.ID,
		TripID:         created.TripID,
		StudentID:      created.StudentID,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		ToStatus:       string(created.Status),
		SeatDelta:      -1,
		AvailableSeats: available,
	})
	return created, e.done("create", nil)
}

// Transition applies a merge-patch to a reservation: an optional status
// change plus optional pickup coordinates.  Moving between active and
// inactive statuses releases or occupies a seat in the same transaction.
func (e *ReservationEngine) Transition(ctx context.Context, actor model.Identity, reservationID uint64, patch model.ReservationPatch) (*model.Reservation, error) {
	if patch.Empty() {
		return nil, e.done("transition", fmt.Errorf("%w: nothing to update", apperrors.ErrValidation))
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, e.done("transition", fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, *patch.Status))
	}

	tripID, err := e.store.ReservationTripID(ctx, reservationID)
	if err != nil {
		return nil, e.done("transition", err)
	}

	var (
		updated   *model.Reservation
		from      model.ReservationStatus
		delta     int
		available int
	)
	err = e.store.InTx(ctx, func(tx Tx) error {
		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}
		res, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := authorizeTransition(actor, trip, res, patch); err != nil {
			return err
		}

		from = res.Status
		next := res.Status
		if patch.Status != nil {
			next = *patch.Status
		}
		if e.strict && !model.CanTransition(from, next) {
			return fmt.Errorf("%w: reservation cannot go from %s to %s", apperrors.ErrInvalidState, from, next)
		}

		delta = model.SeatDelta(from, next)
		if delta < 0 {
			dup, err := tx.HasActiveReservation(ctx, res.TripID, res.StudentID, res.ID)
			if err != nil {
				return err
			}
			if dup {
				return fmt.Errorf("%w: student %d already holds an active reservation on trip %d", apperrors.ErrConflict, res.StudentID, res.TripID)
			}
			if !trip.Bookable() {
				return fmt.Errorf("%w: trip %d cannot take another active reservation", apperrors.ErrInvalidState, trip.ID)
			}
		}

		patch.Apply(res)
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		if delta != 0 {
			if err := tx.AdjustAvailableSeats(ctx, trip.ID, delta); err != nil {
				return err
			}
		}
		updated = res
		available = trip.AvailableSeats + delta
		return nil
	})
	if err != nil {
		return nil, e.done("transition", err)
	}

	metrics.RecordSeatDelta(delta)
	e.publish(ctx, queue.ReservationEvent{
		Kind:           queue.ReservationUpdated,
		ReservationID:  updated.ID,
		TripID:         updated.TripID,
		StudentID:      updated.StudentID,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		FromStatus:     string(from),
		ToStatus:       string(updated.Status),
		SeatDelta:      delta,
		AvailableSeats: available,
	})
	return updated, e.done("transition", nil)
}

// Delete removes a reservation.  Deleting an active reservation gives its
// seat back to the trip.  Only admins and the trip's driver may delete.
func (e *ReservationEngine) Delete(ctx context.Context, actor model.Identity, reservationID uint64) error {
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleDriver {
		return e.done("delete", fmt.Errorf("%w: only drivers and admins can delete reservations", apperrors.ErrForbidden))
	}
	tripID, err := e.store.ReservationTripID(ctx, reservationID)
	if err != nil {
		return e.done("delete", err)
	}

	var (
		deleted   *model.Reservation
		delta     int
		available int
	)
	err = e.store.InTx(ctx, func(tx Tx) error {
		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}
		res, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && trip.DriverID != actor.ID {
			return fmt.Errorf("%w: reservation %d is not on your trip", apperrors.ErrForbidden, reservationID)
		}
		if err := tx.DeleteReservation(ctx, reservationID); err != nil {
			return err
		}
		if res.Status.Active() {
			delta = 1
			if err := tx.AdjustAvailableSeats(ctx, trip.ID, delta); err != nil {
				return err
			}
		}
		deleted = res
		available = trip.AvailableSeats + delta
		return nil
	})
	if err != nil {
		return e.done("delete", err)
	}

	metrics.RecordSeatDelta(delta)
	e.publish(ctx, queue.ReservationEvent{
		Kind:           queue.ReservationDeleted,
		ReservationID:  deleted.ID,
		TripID:         deleted.TripID,
		StudentID:      deleted.StudentID,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		FromStatus:     string(deleted.Status),
		SeatDelta:      delta,
		AvailableSeats: available,
	})
	return e.done("delete", nil)
}

// Get returns a reservation visible to the caller: admins see all,
// drivers see reservations on their trips, students see their own.
func (e *ReservationEngine) Get(ctx context.Context, actor model.Identity, reservationID uint64) (*model.Reservation, error) {
	res, err := e.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleAdmin:
		return res, nil
	case model.RoleStudent:
		if res.StudentID == actor.ID {
			return res, nil
		}
	case model.RoleDriver:
		trip, err := e.store.GetTrip(ctx, res.TripID)
		if err != nil {
			return nil, err
		}
		if trip.DriverID == actor.ID {
			return res, nil
		}
	}
	return nil, fmt.Errorf("%w: reservation %d", apperrors.ErrForbidden, reservationID)
}

// List returns the reservations visible to the caller, newest first.
func (e *ReservationEngine) List(ctx context.Context, actor model.Identity, f model.ReservationFilter) ([]model.Reservation, error) {
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleDriver:
		f.DriverID = actor.ID
	case model.RoleStudent:
		f.StudentID = actor.ID
	default:
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrForbidden, actor.Role)
	}
	return e.store.ListReservations(ctx, f)
}

// authorizeTransition decides whether actor may apply patch to res.
// Drivers manage reservations on their own trips; students may only
// cancel their own reservation or move its pickup point.
func authorizeTransition(actor model.Identity, trip *model.Trip, res *model.Reservation, patch model.ReservationPatch) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleDriver:
		if trip.DriverID == actor.ID {
			return nil
		}
		return fmt.Errorf("%w: reservation %d is not on your trip", apperrors.ErrForbidden, res.ID)
	case model.RoleStudent:
		if res.StudentID != actor.ID {
			return fmt.Errorf("%w: reservation %d belongs to another student", apperrors.ErrForbidden, res.ID)
		}
		if patch.Status != nil && *patch.Status != res.Status && *patch.Status != model.ReservationCancelled {
			return fmt.Errorf("%w: students can only cancel a reservation", apperrors.ErrForbidden)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown role %q", apperrors.ErrForbidden, actor.Role)
}

func (e *ReservationEngine) publish(ctx context.Context, ev queue.ReservationEvent) {
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	if err := e.events.Publish(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		e.logger.Warnf("publish %s for reservation %d: %v", ev.Kind, ev.ReservationID, err)
	}
}

// done records the outcome of op and returns err unchanged.
func (e *ReservationEngine) done(op string, err error) error {
	metrics.ReservationOps.WithLabelValues(op, outcome(err)).Inc()
	if err != nil && apperrors.CheckError(err) >= 500 {
		e.logger.Errorf("%s: %v", op, err)
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperrors.ErrValidation):
		return "validation"
	case errors.Is(err, apperrors.ErrRetryable):
		return "retryable"
	}
	return "error"
}
