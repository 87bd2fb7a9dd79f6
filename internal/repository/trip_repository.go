package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
)

const tripColumns = `id, driver_id, origin_lat, origin_lon, dest_lat, dest_lon, departure_time,
       total_seats, available_seats, status, created_at, updated_at`

// activeStatusList is the SQL list of statuses counted against capacity.
const activeStatusList = `('REQUESTED','ACCEPTED')`

// TripRepo reads and writes the trips table.  available_seats is only
// written by the *Tx methods, which expect the caller to hold the row lock
// taken by GetForUpdateTx.
type TripRepo struct {
	db *sqlx.DB
}

// NewTripRepo returns a new TripRepo bound to the given database.
func NewTripRepo(db *sqlx.DB) *TripRepo { return &TripRepo{db: db} }

// Create inserts a trip and reads back the generated id and timestamps.
func (r *TripRepo) Create(ctx context.Context, t *model.Trip) error {
	const q = `INSERT INTO trips (driver_id, origin_lat, origin_lon, dest_lat, dest_lon, departure_time, total_seats, available_seats, status)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		t.DriverID, t.OriginLat, t.OriginLon, t.DestLat, t.DestLon,
		t.DepartureTime, t.TotalSeats, t.AvailableSeats, t.Status)
	if err != nil {
		return mapMySQLError(err, "insert trip")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*t = *created
	return nil
}

// GetByID returns the trip with the given id or ErrNotFound.
func (r *TripRepo) GetByID(ctx context.Context, id uint64) (*model.Trip, error) {
	var t model.Trip
	if err := r.db.GetContext(ctx, &t, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id); err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("trip %d", id))
	}
	return &t, nil
}

// List returns trips matching f ordered by departure time.
func (r *TripRepo) List(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.DriverID != 0 {
		where = append(where, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if !f.DepartAfter.IsZero() {
		where = append(where, "departure_time >= ?")
		args = append(args, f.DepartAfter.UTC())
	}
	if f.OnlyBookable {
		where = append(where, "status = 'PLANNED' AND available_seats > 0")
	}

	q := `SELECT ` + tripColumns + ` FROM trips`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY departure_time ASC, id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	trips := []model.Trip{}
	if err := r.db.SelectContext(ctx, &trips, q, args...); err != nil {
		return nil, mapMySQLError(err, "list trips")
	}
	return trips, nil
}

// Delete removes a trip.  Trips referenced by reservations yield
// ErrConflict through the foreign key.
func (r *TripRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("trip %d", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trip %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// GetForUpdateTx reads a trip with an exclusive row lock held until tx
// ends.
func (r *TripRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (*model.Trip, error) {
	var t model.Trip
	if err := tx.GetContext(ctx, &t, `SELECT `+tripColumns+` FROM trips WHERE id = ? FOR UPDATE`, id); err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("trip %d", id))
	}
	return &t, nil
}

// AdjustAvailableSeatsTx adds delta to available_seats.  Bounds are the
// caller's concern.
func (r *TripRepo) AdjustAvailableSeatsTx(ctx context.Context, tx *sqlx.Tx, id uint64, delta int) error {
	res, err := tx.ExecContext(ctx, `UPDATE trips SET available_seats = available_seats + ? WHERE id = ?`, delta, id)
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("trip %d", id))
	}
	if n, _ := res.RowsAffected(); n == 0 && delta != 0 {
		return fmt.Errorf("trip %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// CountActiveTx counts REQUESTED and ACCEPTED reservations on a trip.
func (r *TripRepo) CountActiveTx(ctx context.Context, tx *sqlx.Tx, id uint64) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM reservations WHERE trip_id = ? AND status IN `+activeStatusList, id)
	if err != nil {
		return 0, mapMySQLError(err, fmt.Sprintf("count reservations of trip %d", id))
	}
	return n, nil
}

// SetCapacityTx stores a new total and recomputes available_seats from the
// active reservation count.  A negative result is stored as is.
func (r *TripRepo) SetCapacityTx(ctx context.Context, tx *sqlx.Tx, id uint64, totalSeats int) error {
	active, err := r.CountActiveTx(ctx, tx, id)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE trips SET total_seats = ?, available_seats = ? WHERE id = ?`,
		totalSeats, totalSeats-active, id)
	return mapMySQLError(err, fmt.Sprintf("trip %d", id))
}

// UpdateTx writes the route, schedule and status of t.
func (r *TripRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, t *model.Trip) error {
	const q = `UPDATE trips SET origin_lat = ?, origin_lon = ?, dest_lat = ?, dest_lon = ?, departure_time = ?, status = ?
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		t.OriginLat, t.OriginLon, t.DestLat, t.DestLon, t.DepartureTime, t.Status, t.ID)
	return mapMySQLError(err, fmt.Sprintf("trip %d", t.ID))
}
