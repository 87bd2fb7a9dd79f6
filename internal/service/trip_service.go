package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
)

// TripInput is the payload for posting a new trip.  DriverID is only read
// when an admin posts on behalf of a driver.
type TripInput struct {
	DriverID      uint64
	OriginLat     float64
	OriginLon     float64
	DestLat       float64
	DestLon       float64
	DepartureTime time.Time
	TotalSeats    int
}

// TripService manages trips.  Capacity edits share the trip row lock with
// the reservation engine.
type TripService struct {
	store Store
	users UserLookup
}

func NewTripService(store Store, users UserLookup) *TripService {
	return &TripService{store: store, users: users}
}

// Create posts a new PLANNED trip with every seat available.
func (s *TripService) Create(ctx context.Context, actor model.Identity, in TripInput) (*model.Trip, error) {
	switch actor.Role {
	case model.RoleDriver:
		in.DriverID = actor.ID
	case model.RoleAdmin:
		if in.DriverID == 0 {
			return nil, fmt.Errorf("%w: driver_id is required", apperrors.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: only drivers can post trips", apperrors.ErrForbidden)
	}
	if in.TotalSeats <= 0 {
		return nil, fmt.Errorf("%w: total_seats must be positive", apperrors.ErrValidation)
	}

	driver, err := s.users.GetByID(ctx, in.DriverID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: driver %d does not exist", apperrors.ErrValidation, in.DriverID)
		}
		return nil, err
	}
	if driver.Role != model.RoleDriver {
		return nil, fmt.Errorf("%w: user %d is not a driver", apperrors.ErrValidation, in.DriverID)
	}

	t := &model.Trip{
		DriverID:       in.DriverID,
		OriginLat:      in.OriginLat,
		OriginLon:      in.OriginLon,
		DestLat:        in.DestLat,
		DestLon:        in.DestLon,
		DepartureTime:  in.DepartureTime.UTC(),
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		Status:         model.TripPlanned,
	}
	if err := s.store.CreateTrip(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TripService) Get(ctx context.Context, id uint64) (*model.Trip, error) {
	return s.store.GetTrip(ctx, id)
}

func (s *TripService) List(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	return s.store.ListTrips(ctx, f)
}

// Update merge-patches a trip.  A new total_seats recomputes the available
// seats from the live reservation count under the same lock; the result may
// be negative when capacity drops below the active reservations.
func (s *TripService) Update(ctx context.Context, actor model.Identity, tripID uint64, patch model.TripPatch) (*model.Trip, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", apperrors.ErrValidation)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown trip status %q", apperrors.ErrValidation, *patch.Status)
	}
	if patch.TotalSeats != nil && *patch.TotalSeats <= 0 {
		return nil, fmt.Errorf("%w: total_seats must be positive", apperrors.ErrValidation)
	}

	var updated *model.Trip
	err := s.store.InTx(ctx, func(tx Tx) error {
		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && trip.DriverID != actor.ID {
			return fmt.Errorf("%w: trip %d belongs to another driver", apperrors.ErrForbidden, tripID)
		}

		patch.Apply(trip)
		if err := tx.UpdateTrip(ctx, trip); err != nil {
			return err
		}
		if patch.TotalSeats != nil {
			if err := tx.SetCapacity(ctx, tripID, *patch.TotalSeats); err != nil {
				return err
			}
		}
		updated, err = tx.LockTrip(ctx, tripID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a trip.  Trips that still have reservations cannot be
// deleted.
func (s *TripService) Delete(ctx context.Context, actor model.Identity, tripID uint64) error {
	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && trip.DriverID != actor.ID {
		return fmt.Errorf("%w: trip %d belongs to another driver", apperrors.ErrForbidden, tripID)
	}
	return s.store.DeleteTrip(ctx, tripID)
}
