package model

import (
	"strings"
	"time"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripPlanned    TripStatus = "PLANNED"
	TripInProgress TripStatus = "IN_PROGRESS"
	TripCompleted  TripStatus = "COMPLETED"
	TripCancelled  TripStatus = "CANCELLED"
)

// Valid reports whether s is one of the known trip statuses.
func (s TripStatus) Valid() bool {
	switch s {
	case TripPlanned, TripInProgress, TripCompleted, TripCancelled:
		return true
	}
	return false
}

// ParseTripStatus upper-cases raw and maps the Spanish names used by the
// web client (PLANIFICADO, EN_CURSO, COMPLETADO, CANCELADO).
func ParseTripStatus(raw string) TripStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "PLANIFICADO":
		return TripPlanned
	case "EN_CURSO":
		return TripInProgress
	case "COMPLETADO":
		return TripCompleted
	case "CANCELADO":
		return TripCancelled
	}
	return TripStatus(s)
}

// Trip is a ride offering posted by a driver.  AvailableSeats is owned by
// the reservation engine and is only written while the trip row is locked.
//
// Fields:
//  ID             – primary key identifier.
//  DriverID       – user (DRIVER role) who posted the trip.
//  OriginLat/Lon  – departure point.
//  DestLat/Lon    – arrival point.
//  DepartureTime  – scheduled departure (UTC).
//  TotalSeats     – seat capacity, always positive.
//  AvailableSeats – total minus active reservations; may be negative after
//                   a capacity reduction below the live reservation count.
//  Status         – PLANNED, IN_PROGRESS, COMPLETED or CANCELLED.
type Trip struct {
	ID             uint64     `db:"id" json:"id"`
	DriverID       uint64     `db:"driver_id" json:"driver_id"`
	OriginLat      float64    `db:"origin_lat" json:"origin_lat"`
	OriginLon      float64    `db:"origin_lon" json:"origin_lon"`
	DestLat        float64    `db:"dest_lat" json:"dest_lat"`
	DestLon        float64    `db:"dest_lon" json:"dest_lon"`
	DepartureTime  time.Time  `db:"departure_time" json:"departure_time"`
	TotalSeats     int        `db:"total_seats" json:"total_seats"`
	AvailableSeats int        `db:"available_seats" json:"available_seats"`
	Status         TripStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Bookable reports whether a new active reservation may take a seat.
func (t *Trip) Bookable() bool {
	return t.Status == TripPlanned && t.AvailableSeats > 0
}

// TripPatch carries the optional fields of a trip update.  Nil fields are
// left unchanged.
type TripPatch struct {
	OriginLat     *float64
	OriginLon     *float64
	DestLat       *float64
	DestLon       *float64
	DepartureTime *time.Time
	TotalSeats    *int
	Status        *TripStatus
}

// Empty reports whether the patch changes nothing.
func (p TripPatch) Empty() bool {
	return p.OriginLat == nil && p.OriginLon == nil && p.DestLat == nil && p.DestLon == nil &&
		p.DepartureTime == nil && p.TotalSeats == nil && p.Status == nil
}

// Apply merges the non-nil route, schedule and status fields into t.
// TotalSeats is not applied here; capacity edits go through SetCapacityTx.
func (p TripPatch) Apply(t *Trip) {
	if p.OriginLat != nil {
		t.OriginLat = *p.OriginLat
	}
	if p.OriginLon != nil {
		t.OriginLon = *p.OriginLon
	}
	if p.DestLat != nil {
		t.DestLat = *p.DestLat
	}
	if p.DestLon != nil {
		t.DestLon = *p.DestLon
	}
	if p.DepartureTime != nil {
		t.DepartureTime = p.DepartureTime.UTC()
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// TripFilter narrows trip listings.  Zero values mean "any".
type TripFilter struct {
	Status       TripStatus
	DriverID     uint64
	DepartAfter  time.Time
	OnlyBookable bool
	Limit        int
}
