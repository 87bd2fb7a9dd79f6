package model

import (
	"strings"
	"time"
)

// ReservationStatus is the state of a student's seat request.
type ReservationStatus string

const (
	ReservationRequested ReservationStatus = "REQUESTED"
	ReservationAccepted  ReservationStatus = "ACCEPTED"
	ReservationRejected  ReservationStatus = "REJECTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// ActiveStatuses are the statuses counted against trip capacity.
var ActiveStatuses = []ReservationStatus{ReservationRequested, ReservationAccepted}

// Valid reports whether s is one of the known reservation statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationRequested, ReservationAccepted, ReservationRejected, ReservationCancelled:
		return true
	}
	return false
}

// ParseReservationStatus upper-cases raw and maps the Spanish names used by
// the web client (SOLICITADA, ACEPTADA, RECHAZADA, CANCELADA).  Unknown
// values are returned as is and fail Valid.
func ParseReservationStatus(raw string) ReservationStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "SOLICITADA":
		return ReservationRequested
	case "ACEPTADA":
		return ReservationAccepted
	case "RECHAZADA":
		return ReservationRejected
	case "CANCELADA":
		return ReservationCancelled
	}
	return ReservationStatus(s)
}

// Active reports whether a reservation in status s occupies a seat.
func (s ReservationStatus) Active() bool {
	return s == ReservationRequested || s == ReservationAccepted
}

// Terminal reports whether no further transition may leave s.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationRejected || s == ReservationCancelled
}

// legalTransitions lists the edges of the reservation state machine.
// REQUESTED is only ever set at creation.
var legalTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationRequested: {ReservationAccepted, ReservationRejected, ReservationCancelled},
	ReservationAccepted:  {ReservationCancelled},
}

// CanTransition reports whether from -> to is a legal edge.  Staying in the
// same status is always legal and is treated as a no-op.
func CanTransition(from, to ReservationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SeatDelta returns the change to a trip's available seats when a
// reservation moves from one status to another: +1 when a seat is released,
// -1 when one is occupied, 0 otherwise.
func SeatDelta(from, to ReservationStatus) int {
	switch {
	case from.Active() && !to.Active():
		return 1
	case !from.Active() && to.Active():
		return -1
	}
	return 0
}

// Reservation is a student's request to occupy one seat on a trip.
//
// Fields:
//  ID        – primary key identifier.
//  TripID    – trip being reserved; never changes after creation.
//  StudentID – user (STUDENT role) who made the reservation.
//  PickupLat – optional pickup latitude.
//  PickupLon – optional pickup longitude.
//  Status    – REQUESTED, ACCEPTED, REJECTED or CANCELLED.
type Reservation struct {
	ID        uint64            `db:"id" json:"id"`
	TripID    uint64            `db:"trip_id" json:"trip_id"`
	StudentID uint64            `db:"student_id" json:"student_id"`
	PickupLat *float64          `db:"pickup_lat" json:"pickup_lat"`
	PickupLon *float64          `db:"pickup_lon" json:"pickup_lon"`
	Status    ReservationStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// ReservationPatch carries a merge-patch for a reservation.  Nil fields are
// left unchanged.
type ReservationPatch struct {
	Status    *ReservationStatus
	PickupLat *float64
	PickupLon *float64
}

// Empty reports whether the patch changes nothing.
func (p ReservationPatch) Empty() bool {
	return p.Status == nil && p.PickupLat == nil && p.PickupLon == nil
}

// PickupOnly reports whether the patch leaves the status untouched.
func (p ReservationPatch) PickupOnly() bool {
	return p.Status == nil && (p.PickupLat != nil || p.PickupLon != nil)
}

// Apply merges the patch into r.
func (p ReservationPatch) Apply(r *Reservation) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.PickupLat != nil {
		lat := *p.PickupLat
		r.PickupLat = &lat
	}
	if p.PickupLon != nil {
		lon := *p.PickupLon
		r.PickupLon = &lon
	}
}

// ReservationFilter narrows reservation listings.  Zero values mean "any".
type ReservationFilter struct {
	TripID    uint64
	StudentID uint64
	DriverID  uint64
	Status    ReservationStatus
}
