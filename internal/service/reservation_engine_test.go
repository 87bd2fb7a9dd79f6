package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/queue"
)

const (
	adminID  uint64 = 1
	driverID uint64 = 2
	otherDrv uint64 = 3
	studentA uint64 = 10
	studentB uint64 = 11
)

var (
	admin   = model.Identity{ID: adminID, Role: model.RoleAdmin}
	driver  = model.Identity{ID: driverID, Role: model.RoleDriver}
	driver2 = model.Identity{ID: otherDrv, Role: model.RoleDriver}
	alice   = model.Identity{ID: studentA, Role: model.RoleStudent}
	bob     = model.Identity{ID: studentB, Role: model.RoleStudent}
)

func newEngine(t *testing.T, strict bool) (*ReservationEngine, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	store.addUser(adminID, model.RoleAdmin)
	store.addUser(driverID, model.RoleDriver)
	store.addUser(otherDrv, model.RoleDriver)
	store.addUser(studentA, model.RoleStudent)
	store.addUser(studentB, model.RoleStudent)
	pub := &recordingPublisher{}
	logger := log.New("test")
	logger.SetLevel(log.OFF)
	return NewReservationEngine(store, pub, logger, strict), store, pub
}

func status(s model.ReservationStatus) model.ReservationPatch {
	return model.ReservationPatch{Status: &s}
}

func requireConserved(t *testing.T, store *memStore, tripID uint64) {
	t.Helper()
	trip := store.trip(tripID)
	require.Equal(t, trip.TotalSeats-store.activeCount(tripID), trip.AvailableSeats)
}

func TestCreateBooksOneSeat(t *testing.T) {
	eng, store, pub := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)
	lat, lon := -0.21, -78.49

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{Lat: &lat, Lon: &lon})
	require.NoError(t, err)
	require.Equal(t, model.ReservationRequested, r.Status)
	require.Equal(t, studentA, r.StudentID)
	require.InDelta(t, lat, *r.PickupLat, 1e-9)
	require.Equal(t, 2, store.trip(tripID).AvailableSeats)
	require.Equal(t, []string{queue.ReservationCreated}, pub.kinds())
	require.Equal(t, -1, pub.events[0].SeatDelta)
	require.Equal(t, 2, pub.events[0].AvailableSeats)
}

func TestCreateOnlyStudents(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)

	for _, who := range []model.Identity{admin, driver} {
		_, err := eng.Create(context.Background(), who, tripID, Pickup{})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	}
	require.Equal(t, 3, store.trip(tripID).AvailableSeats)
}

func TestCreateRejectsUnbookableTrips(t *testing.T) {
	eng, store, _ := newEngine(t, true)

	_, err := eng.Create(context.Background(), alice, 999, Pickup{})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	full := store.addTrip(driverID, 1)
	tr := store.trip(full)
	tr.AvailableSeats = 0
	store.setTrip(tr)
	_, err = eng.Create(context.Background(), alice, full, Pickup{})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	started := store.addTrip(driverID, 2)
	tr = store.trip(started)
	tr.Status = model.TripInProgress
	store.setTrip(tr)
	_, err = eng.Create(context.Background(), alice, started, Pickup{})
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
	require.Equal(t, 2, store.trip(started).AvailableSeats)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)

	_, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Create(context.Background(), alice, tripID, Pickup{})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.Equal(t, 409, apperrors.CheckError(err))
	require.Equal(t, 2, store.trip(tripID).AvailableSeats)
}

func TestCreateAfterCancelIsAllowed(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), alice, r.ID, status(model.ReservationCancelled))
	require.NoError(t, err)

	_, err = eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	requireConserved(t, store, tripID)
}

func TestConcurrentCreatesForLastSeat(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 1)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < n; i++ {
		student := model.Identity{ID: 100 + uint64(i), Role: model.RoleStudent}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Create(context.Background(), student, tripID, Pickup{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrInvalidState):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, n-1, rejected)
	require.Equal(t, 0, store.trip(tripID).AvailableSeats)
	requireConserved(t, store, tripID)
}

func TestCancelAcceptedRestoresSeat(t *testing.T) {
	eng, store, pub := newEngine(t, true)
	tripID := store.addTrip(driverID, 1)

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationAccepted))
	require.NoError(t, err)
	require.Equal(t, 0, store.trip(tripID).AvailableSeats)

	got, err := eng.Transition(context.Background(), alice, r.ID, status(model.ReservationCancelled))
	require.NoError(t, err)
	require.Equal(t, model.ReservationCancelled, got.Status)
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)

	last := pub.events[len(pub.events)-1]
	require.Equal(t, queue.ReservationUpdated, last.Kind)
	require.Equal(t, "ACCEPTED", last.FromStatus)
	require.Equal(t, "CANCELLED", last.ToStatus)
	require.Equal(t, 1, last.SeatDelta)
}

func TestSameStatusTransitionIsNoOp(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 2)

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationRequested))
		require.NoError(t, err)
	}
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)

	_, err = eng.Transition(context.Background(), alice, r.ID, status(model.ReservationCancelled))
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), alice, r.ID, status(model.ReservationCancelled))
	require.NoError(t, err)
	require.Equal(t, 2, store.trip(tripID).AvailableSeats)
}

func TestStrictTransitionsRejectIllegalEdges(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationRejected))
	require.NoError(t, err)

	for _, to := range []model.ReservationStatus{model.ReservationAccepted, model.ReservationRequested, model.ReservationCancelled} {
		_, err = eng.Transition(context.Background(), driver, r.ID, status(to))
		require.ErrorIs(t, err, apperrors.ErrInvalidState, "REJECTED -> %s", to)
	}
	requireConserved(t, store, tripID)
}

func TestLenientTransitionsReoccupySeat(t *testing.T) {
	eng, store, _ := newEngine(t, false)
	tripID := store.addTrip(driverID, 1)

	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationRejected))
	require.NoError(t, err)
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)

	// Bob takes the freed seat, so reactivating Alice must fail on capacity.
	_, err = eng.Create(context.Background(), bob, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationAccepted))
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	tr := store.trip(tripID)
	tr.TotalSeats, tr.AvailableSeats = 2, 1
	store.setTrip(tr)
	_, err = eng.Transition(context.Background(), driver, r.ID, status(model.ReservationAccepted))
	require.NoError(t, err)
	require.Equal(t, 0, store.trip(tripID).AvailableSeats)
	requireConserved(t, store, tripID)
}

func TestLenientReactivationChecksDuplicates(t *testing.T) {
	eng, store, _ := newEngine(t, false)
	tripID := store.addTrip(driverID, 3)

	old, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), alice, old.ID, status(model.ReservationCancelled))
	require.NoError(t, err)
	_, err = eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)

	_, err = eng.Transition(context.Background(), admin, old.ID, status(model.ReservationRequested))
	require.ErrorIs(t, err, apperrors.ErrConflict)
	requireConserved(t, store, tripID)
}

func TestTransitionAuthorization(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)
	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)

	_, err = eng.Transition(context.Background(), bob, r.ID, status(model.ReservationCancelled))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = eng.Transition(context.Background(), alice, r.ID, status(model.ReservationAccepted))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = eng.Transition(context.Background(), driver2, r.ID, status(model.ReservationAccepted))
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	lat := 1.5
	got, err := eng.Transition(context.Background(), alice, r.ID, model.ReservationPatch{PickupLat: &lat})
	require.NoError(t, err)
	require.Equal(t, model.ReservationRequested, got.Status)
	require.InDelta(t, 1.5, *got.PickupLat, 1e-9)

	_, err = eng.Transition(context.Background(), admin, r.ID, status(model.ReservationAccepted))
	require.NoError(t, err)
	require.Equal(t, 2, store.trip(tripID).AvailableSeats)
}

func TestTransitionValidation(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 3)
	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)

	_, err = eng.Transition(context.Background(), driver, r.ID, model.ReservationPatch{})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = eng.Transition(context.Background(), driver, r.ID, status("BOARDED"))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = eng.Transition(context.Background(), driver, 999, status(model.ReservationAccepted))
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteRestoresSeatOnlyWhenActive(t *testing.T) {
	eng, store, pub := newEngine(t, true)
	tripID := store.addTrip(driverID, 2)

	active, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	inactive, err := eng.Create(context.Background(), bob, tripID, Pickup{})
	require.NoError(t, err)
	_, err = eng.Transition(context.Background(), driver, inactive.ID, status(model.ReservationRejected))
	require.NoError(t, err)
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)

	require.NoError(t, eng.Delete(context.Background(), driver, inactive.ID))
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)

	require.NoError(t, eng.Delete(context.Background(), admin, active.ID))
	require.Equal(t, 2, store.trip(tripID).AvailableSeats)

	last := pub.events[len(pub.events)-1]
	require.Equal(t, queue.ReservationDeleted, last.Kind)
	require.Equal(t, 1, last.SeatDelta)

	err = eng.Delete(context.Background(), admin, active.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteAuthorization(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	tripID := store.addTrip(driverID, 2)
	r, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)

	require.ErrorIs(t, eng.Delete(context.Background(), alice, r.ID), apperrors.ErrForbidden)
	require.ErrorIs(t, eng.Delete(context.Background(), driver2, r.ID), apperrors.ErrForbidden)
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	eng, store, pub := newEngine(t, true)
	pub.err = errors.New("broker down")
	tripID := store.addTrip(driverID, 2)

	_, err := eng.Create(context.Background(), alice, tripID, Pickup{})
	require.NoError(t, err)
	require.Equal(t, 1, store.trip(tripID).AvailableSeats)
}

func TestGetAndListAreScopedByRole(t *testing.T) {
	eng, store, _ := newEngine(t, true)
	mine := store.addTrip(driverID, 3)
	theirs := store.addTrip(otherDrv, 3)

	ra, err := eng.Create(context.Background(), alice, mine, Pickup{})
	require.NoError(t, err)
	_, err = eng.Create(context.Background(), bob, theirs, Pickup{})
	require.NoError(t, err)

	list, err := eng.List(context.Background(), admin, model.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Greater(t, list[0].ID, list[1].ID)

	list, err = eng.List(context.Background(), driver, model.ReservationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, mine, list[0].TripID)

	list, err = eng.List(context.Background(), bob, model.ReservationFilter{StudentID: studentA})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, studentB, list[0].StudentID)

	_, err = eng.Get(context.Background(), alice, ra.ID)
	require.NoError(t, err)
	_, err = eng.Get(context.Background(), driver, ra.ID)
	require.NoError(t, err)
	_, err = eng.Get(context.Background(), bob, ra.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = eng.Get(context.Background(), driver2, ra.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

// TestSeatConservationUnderRandomOps drives a random mix of operations and
// checks the seat invariant plus the one-active-per-student rule after each.
func TestSeatConservationUnderRandomOps(t *testing.T) {
	for _, strict := range []bool{true, false} {
		eng, store, _ := newEngine(t, strict)
		tripID := store.addTrip(driverID, 4)
		rng := rand.New(rand.NewSource(42))
		statuses := []model.ReservationStatus{
			model.ReservationRequested, model.ReservationAccepted,
			model.ReservationRejected, model.ReservationCancelled,
		}
		actors := []model.Identity{admin, driver}

		var ids []uint64
		for step := 0; step < 400; step++ {
			ctx := context.Background()
			switch op := rng.Intn(3); {
			case op == 0 || len(ids) == 0:
				student := model.Identity{ID: 100 + uint64(rng.Intn(6)), Role: model.RoleStudent}
				if r, err := eng.Create(ctx, student, tripID, Pickup{}); err == nil {
					ids = append(ids, r.ID)
				}
			case op == 1:
				id := ids[rng.Intn(len(ids))]
				_, _ = eng.Transition(ctx, actors[rng.Intn(2)], id, status(statuses[rng.Intn(len(statuses))]))
			default:
				i := rng.Intn(len(ids))
				if err := eng.Delete(ctx, actors[rng.Intn(2)], ids[i]); err == nil {
					ids = append(ids[:i], ids[i+1:]...)
				}
			}

			requireConserved(t, store, tripID)
			list, err := eng.List(ctx, admin, model.ReservationFilter{TripID: tripID})
			require.NoError(t, err)
			seen := map[uint64]bool{}
			for _, r := range list {
				if !r.Status.Active() {
					continue
				}
				require.False(t, seen[r.StudentID], "student %d holds two active reservations", r.StudentID)
				seen[r.StudentID] = true
			}
			require.GreaterOrEqual(t, store.trip(tripID).AvailableSeats, 0)
		}
	}
}
