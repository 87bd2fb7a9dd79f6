package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/service"
)

// Store bundles the trip and reservation repositories behind the
// service.Store port.  Transactions run at READ COMMITTED; consistency
// comes from the explicit SELECT ... FOR UPDATE row locks, not from the
// isolation level.
type Store struct {
	db           *sqlx.DB
	Trips        *TripRepo
	Reservations *ReservationRepo
}

// NewStore returns a Store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:           db,
		Trips:        NewTripRepo(db),
		Reservations: NewReservationRepo(db),
	}
}

// InTx begins a transaction, runs fn and commits when fn succeeds.  Any
// error, including a panic unwinding through fn, rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapMySQLError(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&txScope{tx: tx, trips: s.Trips, res: s.Reservations}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapMySQLError(err, "commit")
	}
	committed = true
	return nil
}

func (s *Store) ReservationTripID(ctx context.Context, id uint64) (uint64, error) {
	return s.Reservations.TripIDOf(ctx, id)
}

func (s *Store) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return s.Reservations.GetByID(ctx, id)
}

func (s *Store) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	return s.Reservations.List(ctx, f)
}

func (s *Store) GetTrip(ctx context.Context, id uint64) (*model.Trip, error) {
	return s.Trips.GetByID(ctx, id)
}

func (s *Store) ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	return s.Trips.List(ctx, f)
}

func (s *Store) CreateTrip(ctx context.Context, t *model.Trip) error {
	return s.Trips.Create(ctx, t)
}

func (s *Store) DeleteTrip(ctx context.Context, id uint64) error {
	return s.Trips.Delete(ctx, id)
}

// txScope adapts one *sqlx.Tx to service.Tx.
type txScope struct {
	tx    *sqlx.Tx
	trips *TripRepo
	res   *ReservationRepo
}

func (t *txScope) LockTrip(ctx context.Context, tripID uint64) (*model.Trip, error) {
	return t.trips.GetForUpdateTx(ctx, t.tx, tripID)
}

func (t *txScope) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.res.GetForUpdateTx(ctx, t.tx, id)
}

func (t *txScope) HasActiveReservation(ctx context.Context, tripID, studentID, excludeID uint64) (bool, error) {
	return t.res.HasActiveTx(ctx, t.tx, tripID, studentID, excludeID)
}

func (t *txScope) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return t.res.CreateTx(ctx, t.tx, r)
}

func (t *txScope) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	return t.res.UpdateTx(ctx, t.tx, r)
}

func (t *txScope) DeleteReservation(ctx context.Context, id uint64) error {
	return t.res.DeleteTx(ctx, t.tx, id)
}

func (t *txScope) AdjustAvailableSeats(ctx context.Context, tripID uint64, delta int) error {
	return t.trips.AdjustAvailableSeatsTx(ctx, t.tx, tripID, delta)
}

func (t *txScope) SetCapacity(ctx context.Context, tripID uint64, totalSeats int) error {
	return t.trips.SetCapacityTx(ctx, t.tx, tripID, totalSeats)
}

func (t *txScope) UpdateTrip(ctx context.Context, trip *model.Trip) error {
	return t.trips.UpdateTx(ctx, t.tx, trip)
}
