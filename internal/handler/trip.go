package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/service"
)

const (
	defaultTripLimit = 50
	maxTripLimit     = 200
)

// TripService is what the trip endpoints need from the service layer.
type TripService interface {
	Create(ctx context.Context, actor model.Identity, in service.TripInput) (*model.Trip, error)
	Get(ctx context.Context, id uint64) (*model.Trip, error)
	List(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	Update(ctx context.Context, actor model.Identity, id uint64, patch model.TripPatch) (*model.Trip, error)
	Delete(ctx context.Context, actor model.Identity, id uint64) error
}

type TripHandler struct {
	Trips TripService
	Cache CacheBumper
}

func NewTripHandler(svc TripService, cache CacheBumper) *TripHandler {
	if cache == nil {
		cache = noopBumper{}
	}
	return &TripHandler{Trips: svc, Cache: cache}
}

type createTripReq struct {
	DriverID      uint64    `json:"driver_id"`
	OriginLat     *float64  `json:"origin_lat" validate:"required,gte=-90,lte=90"`
	OriginLon     *float64  `json:"origin_lon" validate:"required,gte=-180,lte=180"`
	DestLat       *float64  `json:"dest_lat" validate:"required,gte=-90,lte=90"`
	DestLon       *float64  `json:"dest_lon" validate:"required,gte=-180,lte=180"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	TotalSeats    int       `json:"total_seats" validate:"required,gt=0"`
}

type patchTripReq struct {
	OriginLat     *float64   `json:"origin_lat" validate:"omitempty,gte=-90,lte=90"`
	OriginLon     *float64   `json:"origin_lon" validate:"omitempty,gte=-180,lte=180"`
	DestLat       *float64   `json:"dest_lat" validate:"omitempty,gte=-90,lte=90"`
	DestLon       *float64   `json:"dest_lon" validate:"omitempty,gte=-180,lte=180"`
	DepartureTime *time.Time `json:"departure_time"`
	TotalSeats    *int       `json:"total_seats" validate:"omitempty,gt=0"`
	Status        *string    `json:"status"`
}

// List serves GET /v1/trips.  Query parameters: status, driver_id,
// departs_after (RFC3339), available=true and limit.
func (h *TripHandler) List(c echo.Context) error {
	f := model.TripFilter{Limit: defaultTripLimit}
	var status string
	if err := echo.QueryParamsBinder(c).
		String("status", &status).
		Uint64("driver_id", &f.DriverID).
		Time("departs_after", &f.DepartAfter, time.RFC3339).
		Bool("available", &f.OnlyBookable).
		Int("limit", &f.Limit).
		BindError(); err != nil {
		return writeError(c, validationf("invalid query: %v", err))
	}
	if status != "" {
		f.Status = model.ParseTripStatus(status)
		if !f.Status.Valid() {
			return writeError(c, validationf("unknown trip status %q", status))
		}
	}
	if f.Limit <= 0 || f.Limit > maxTripLimit {
		f.Limit = defaultTripLimit
	}

	trips, err := h.Trips.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": trips, "count": len(trips)})
}

func (h *TripHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	trip, err := h.Trips.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, trip)
}

// Create posts a trip.  Drivers post for themselves; admins name the driver.
func (h *TripHandler) Create(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	var req createTripReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	trip, err := h.Trips.Create(c.Request().Context(), actor, service.TripInput{
		DriverID:      req.DriverID,
		OriginLat:     *req.OriginLat,
		OriginLon:     *req.OriginLon,
		DestLat:       *req.DestLat,
		DestLon:       *req.DestLon,
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
	})
	if err != nil {
		return writeError(c, err)
	}
	h.bump(c)
	return c.JSON(http.StatusCreated, trip)
}

func (h *TripHandler) Update(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req patchTripReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	patch := model.TripPatch{
		OriginLat:     req.OriginLat,
		OriginLon:     req.OriginLon,
		DestLat:       req.DestLat,
		DestLon:       req.DestLon,
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
	}
	if req.Status != nil {
		st := model.ParseTripStatus(*req.Status)
		patch.Status = &st
	}

	trip, err := h.Trips.Update(c.Request().Context(), actor, id, patch)
	if err != nil {
		return writeError(c, err)
	}
	h.bump(c)
	return c.JSON(http.StatusOK, trip)
}

func (h *TripHandler) Delete(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Trips.Delete(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	h.bump(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *TripHandler) bump(c echo.Context) {
	if err := h.Cache.Bump(c.Request().Context()); err != nil {
		c.Logger().Warnf("cache bump: %v", err)
	}
}
