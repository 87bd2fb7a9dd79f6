package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puce-ride/appride/internal/apperrors"
	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/queue"
)

// memStore is an in-memory Store.  InTx holds one mutex for the whole
// transaction, which is stricter than row locks but gives the same
// serialization per trip, and restores a snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	nextTrip uint64
	nextRes  uint64
	trips    map[uint64]model.Trip
	res      map[uint64]model.Reservation
	users    map[uint64]model.User
}

func newMemStore() *memStore {
	return &memStore{
		trips: map[uint64]model.Trip{},
		res:   map[uint64]model.Reservation{},
		users: map[uint64]model.User{},
	}
}

func (s *memStore) addUser(id uint64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = model.User{ID: id, Role: role, Email: fmt.Sprintf("u%d@appride.com", id), IsActive: true}
}

func (s *memStore) addTrip(driverID uint64, total int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTrip++
	s.trips[s.nextTrip] = model.Trip{
		ID:             s.nextTrip,
		DriverID:       driverID,
		DepartureTime:  time.Now().Add(time.Hour).UTC(),
		TotalSeats:     total,
		AvailableSeats: total,
		Status:         model.TripPlanned,
	}
	return s.nextTrip
}

func (s *memStore) trip(id uint64) model.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id]
}

func (s *memStore) setTrip(t model.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = t
}

func (s *memStore) activeCount(tripID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCountLocked(tripID)
}

func (s *memStore) activeCountLocked(tripID uint64) int {
	n := 0
	for _, r := range s.res {
		if r.TripID == tripID && r.Status.Active() {
			n++
		}
	}
	return n
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trips := make(map[uint64]model.Trip, len(s.trips))
	for k, v := range s.trips {
		trips[k] = v
	}
	res := make(map[uint64]model.Reservation, len(s.res))
	for k, v := range s.res {
		res[k] = v
	}
	nextRes := s.nextRes

	if err := fn(&memTx{s: s}); err != nil {
		s.trips, s.res, s.nextRes = trips, res, nextRes
		return err
	}
	return nil
}

func (s *memStore) ReservationTripID(ctx context.Context, id uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.res[id]
	if !ok {
		return 0, fmt.Errorf("reservation %d: %w", id, apperrors.ErrNotFound)
	}
	return r.TripID, nil
}

func (s *memStore) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.res[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, apperrors.ErrNotFound)
	}
	return &r, nil
}

func (s *memStore) ListReservations(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.res {
		if f.TripID != 0 && r.TripID != f.TripID {
			continue
		}
		if f.StudentID != 0 && r.StudentID != f.StudentID {
			continue
		}
		if f.DriverID != 0 && s.trips[r.TripID].DriverID != f.DriverID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) GetTrip(ctx context.Context, id uint64) (*model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, fmt.Errorf("trip %d: %w", id, apperrors.ErrNotFound)
	}
	return &t, nil
}

func (s *memStore) ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Trip
	for _, t := range s.trips {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.DriverID != 0 && t.DriverID != f.DriverID {
			continue
		}
		if f.OnlyBookable && !t.Bookable() {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateTrip(ctx context.Context, t *model.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTrip++
	t.ID = s.nextTrip
	s.trips[t.ID] = *t
	return nil
}

func (s *memStore) DeleteTrip(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[id]; !ok {
		return fmt.Errorf("trip %d: %w", id, apperrors.ErrNotFound)
	}
	for _, r := range s.res {
		if r.TripID == id {
			return fmt.Errorf("trip %d has reservations: %w", id, apperrors.ErrConflict)
		}
	}
	delete(s.trips, id)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	return u, nil
}

// memTx runs with memStore.mu already held.
type memTx struct{ s *memStore }

func (tx *memTx) LockTrip(ctx context.Context, id uint64) (*model.Trip, error) {
	t, ok := tx.s.trips[id]
	if !ok {
		return nil, fmt.Errorf("trip %d: %w", id, apperrors.ErrNotFound)
	}
	return &t, nil
}

func (tx *memTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, ok := tx.s.res[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, apperrors.ErrNotFound)
	}
	return &r, nil
}

func (tx *memTx) HasActiveReservation(ctx context.Context, tripID, studentID, excludeID uint64) (bool, error) {
	for _, r := range tx.s.res {
		if r.ID != excludeID && r.TripID == tripID && r.StudentID == studentID && r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// checkUnique mimics the unique (trip_id, student_id, active_key) index.
func (tx *memTx) checkUnique(r *model.Reservation) error {
	if !r.Status.Active() {
		return nil
	}
	dup, _ := tx.HasActiveReservation(context.Background(), r.TripID, r.StudentID, r.ID)
	if dup {
		return fmt.Errorf("duplicate active reservation: %w", apperrors.ErrConflict)
	}
	return nil
}

func (tx *memTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	if err := tx.checkUnique(r); err != nil {
		return err
	}
	tx.s.nextRes++
	r.ID = tx.s.nextRes
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	tx.s.res[r.ID] = *r
	return nil
}

func (tx *memTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if _, ok := tx.s.res[r.ID]; !ok {
		return fmt.Errorf("reservation %d: %w", r.ID, apperrors.ErrNotFound)
	}
	if err := tx.checkUnique(r); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	tx.s.res[r.ID] = *r
	return nil
}

func (tx *memTx) DeleteReservation(ctx context.Context, id uint64) error {
	if _, ok := tx.s.res[id]; !ok {
		return fmt.Errorf("reservation %d: %w", id, apperrors.ErrNotFound)
	}
	delete(tx.s.res, id)
	return nil
}

func (tx *memTx) AdjustAvailableSeats(ctx context.Context, tripID uint64, delta int) error {
	t, ok := tx.s.trips[tripID]
	if !ok {
		return fmt.Errorf("trip %d: %w", tripID, apperrors.ErrNotFound)
	}
	t.AvailableSeats += delta
	tx.s.trips[tripID] = t
	return nil
}

func (tx *memTx) SetCapacity(ctx context.Context, tripID uint64, total int) error {
	t, ok := tx.s.trips[tripID]
	if !ok {
		return fmt.Errorf("trip %d: %w", tripID, apperrors.ErrNotFound)
	}
	t.TotalSeats = total
	t.AvailableSeats = total - tx.s.activeCountLocked(tripID)
	tx.s.trips[tripID] = t
	return nil
}

func (tx *memTx) UpdateTrip(ctx context.Context, t *model.Trip) error {
	cur, ok := tx.s.trips[t.ID]
	if !ok {
		return fmt.Errorf("trip %d: %w", t.ID, apperrors.ErrNotFound)
	}
	cur.OriginLat, cur.OriginLon = t.OriginLat, t.OriginLon
	cur.DestLat, cur.DestLon = t.DestLat, t.DestLon
	cur.DepartureTime = t.DepartureTime
	cur.Status = t.Status
	tx.s.trips[t.ID] = cur
	return nil
}

// recordingPublisher keeps every published event and can be told to fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}
