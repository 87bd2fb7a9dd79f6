package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
)

func newTripService(t *testing.T) (*TripService, *ReservationEngine, *memStore) {
	t.Helper()
	eng, store, _ := newEngine(t, true)
	return NewTripService(store, store), eng, store
}

func TestTripCreate(t *testing.T) {
	svc, _, _ := newTripService(t)
	ctx := context.Background()
	in := TripInput{OriginLat: -0.2, OriginLon: -78.5, DestLat: -0.18, DestLon: -78.48, DepartureTime: time.Now().Add(2 * time.Hour), TotalSeats: 4}

	trip, err := svc.Create(ctx, driver, in)
	require.NoError(t, err)
	require.Equal(t, driverID, trip.DriverID)
	require.Equal(t, 4, trip.AvailableSeats)
	require.Equal(t, model.TripPlanned, trip.Status)

	_, err = svc.Create(ctx, alice, in)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.Create(ctx, admin, in)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	in.DriverID = studentA
	_, err = svc.Create(ctx, admin, in)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	in.DriverID = otherDrv
	trip, err = svc.Create(ctx, admin, in)
	require.NoError(t, err)
	require.Equal(t, otherDrv, trip.DriverID)

	in.TotalSeats = 0
	_, err = svc.Create(ctx, driver, in)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCapacityReductionIsNotClamped(t *testing.T) {
	svc, eng, store := newTripService(t)
	ctx := context.Background()
	tripID := store.addTrip(driverID, 3)

	_, err := eng.Create(ctx, alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Create(ctx, bob, tripID, Pickup{})
	require.NoError(t, err)

	one := 1
	trip, err := svc.Update(ctx, driver, tripID, model.TripPatch{TotalSeats: &one})
	require.NoError(t, err)
	require.Equal(t, 1, trip.TotalSeats)
	require.Equal(t, -1, trip.AvailableSeats)

	carol := model.Identity{ID: 12, Role: model.RoleStudent}
	_, err = eng.Create(ctx, carol, tripID, Pickup{})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
	requireConserved(t, store, tripID)
}

func TestTripUpdate(t *testing.T) {
	svc, _, store := newTripService(t)
	ctx := context.Background()
	tripID := store.addTrip(driverID, 3)

	lat := 1.25
	_, err := svc.Update(ctx, driver2, tripID, model.TripPatch{DestLat: &lat})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.Update(ctx, driver, tripID, model.TripPatch{})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	bad := model.TripStatus("LOST")
	_, err = svc.Update(ctx, driver, tripID, model.TripPatch{Status: &bad})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	started := model.TripInProgress
	trip, err := svc.Update(ctx, admin, tripID, model.TripPatch{DestLat: &lat, Status: &started})
	require.NoError(t, err)
	require.InDelta(t, 1.25, trip.DestLat, 1e-9)
	require.Equal(t, model.TripInProgress, trip.Status)
	require.Equal(t, 3, trip.AvailableSeats)

	_, err = svc.Update(ctx, admin, 999, model.TripPatch{DestLat: &lat})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTripDelete(t *testing.T) {
	svc, eng, store := newTripService(t)
	ctx := context.Background()
	busy := store.addTrip(driverID, 3)
	empty := store.addTrip(driverID, 3)

	_, err := eng.Create(ctx, alice, busy, Pickup{})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, driver2, empty), apperrors.ErrForbidden)
	require.ErrorIs(t, svc.Delete(ctx, driver, busy), apperrors.ErrConflict)
	require.NoError(t, svc.Delete(ctx, driver, empty))
	_, err = svc.Get(ctx, empty)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTripListFilters(t *testing.T) {
	svc, _, store := newTripService(t)
	ctx := context.Background()
	store.addTrip(driverID, 3)
	full := store.addTrip(otherDrv, 1)
	tr := store.trip(full)
	tr.AvailableSeats = 0
	store.setTrip(tr)

	all, err := svc.List(ctx, model.TripFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	bookable, err := svc.List(ctx, model.TripFilter{OnlyBookable: true})
	require.NoError(t, err)
	require.Len(t, bookable, 1)

	mine, err := svc.List(ctx, model.TripFilter{DriverID: otherDrv})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, full, mine[0].ID)
}
