package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
)

const reservationColumns = `r.id, r.trip_id, r.student_id, r.pickup_lat, r.pickup_lon, r.status, r.created_at, r.updated_at`

// ReservationRepo provides CRUD operations for reservations.  At most one
// active reservation per (trip, student) is backed by the unique index on
// (trip_id, student_id, active_key); a violation surfaces as ErrConflict.
type ReservationRepo struct {
	db *sqlx.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sqlx.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// TripIDOf returns the trip a reservation belongs to, without locking.
func (r *ReservationRepo) TripIDOf(ctx context.Context, id uint64) (uint64, error) {
	var tripID uint64
	if err := r.db.GetContext(ctx, &tripID, `SELECT trip_id FROM reservations WHERE id = ?`, id); err != nil {
		return 0, mapMySQLError(err, fmt.Sprintf("reservation %d", id))
	}
	return tripID, nil
}

// GetByID returns a single reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	if err := r.db.GetContext(ctx, &res, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id); err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("reservation %d", id))
	}
	return &res, nil
}

// List returns reservations matching f, newest first.  DriverID restricts
// the result to reservations on that driver's trips.
func (r *ReservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	var (
		where []string
		args  []interface{}
	)
	q := `SELECT ` + reservationColumns + ` FROM reservations r`
	if f.DriverID != 0 {
		q += ` JOIN trips t ON t.id = r.trip_id`
		where = append(where, "t.driver_id = ?")
		args = append(args, f.DriverID)
	}
	if f.TripID != 0 {
		where = append(where, "r.trip_id = ?")
		args = append(args, f.TripID)
	}
	if f.StudentID != 0 {
		where = append(where, "r.student_id = ?")
		args = append(args, f.StudentID)
	}
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, f.Status)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.created_at DESC, r.id DESC"

	list := []model.Reservation{}
	if err := r.db.SelectContext(ctx, &list, q, args...); err != nil {
		return nil, mapMySQLError(err, "list reservations")
	}
	return list, nil
}

// GetForUpdateTx reads a reservation with an exclusive row lock.  Callers
// must already hold the lock on its trip.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.Reservation, error) {
	var res model.Reservation
	if err := tx.GetContext(ctx, &res, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ? FOR UPDATE`, id); err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("reservation %d", id))
	}
	return &res, nil
}

// HasActiveTx reports whether the student holds an active reservation on
// the trip, ignoring excludeID.
func (r *ReservationRepo) HasActiveTx(ctx context.Context, tx *sqlx.Tx, tripID, studentID, excludeID uint64) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM reservations
                             WHERE trip_id = ? AND student_id = ? AND id <> ? AND status IN ` + activeStatusList + `)`
	if err := tx.GetContext(ctx, &exists, q, tripID, studentID, excludeID); err != nil {
		return false, mapMySQLError(err, "check active reservation")
	}
	return exists, nil
}

// CreateTx inserts a reservation within tx and reads back the generated id
// and timestamps.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (trip_id, student_id, pickup_lat, pickup_lon, status) VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.TripID, res.StudentID, res.PickupLat, res.PickupLon, res.Status)
	if err != nil {
		return mapMySQLError(err, "insert reservation")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	return r.reloadTx(ctx, tx, uint64(id), res)
}

// UpdateTx writes the status and pickup point of res.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, res *model.Reservation) error {
	const q = `UPDATE reservations SET status = ?, pickup_lat = ?, pickup_lon = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, res.Status, res.PickupLat, res.PickupLon, res.ID); err != nil {
		return mapMySQLError(err, fmt.Sprintf("reservation %d", res.ID))
	}
	return r.reloadTx(ctx, tx, res.ID, res)
}

// DeleteTx removes a reservation.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uint64) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("reservation %d", id))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("reservation %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *ReservationRepo) reloadTx(ctx context.Context, tx *sqlx.Tx, id uint64, dst *model.Reservation) error {
	if err := tx.GetContext(ctx, dst, `SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id); err != nil {
		return mapMySQLError(err, fmt.Sprintf("reservation %d", id))
	}
	return nil
}
