package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/model"
	"github.com/puce-ride/appride/internal/service"
)

// ReservationService is the part of the reservation engine the HTTP layer
// calls.
type ReservationService interface {
	Create(ctx context.Context, actor model.Identity, tripID uint64, pickup service.Pickup) (*model.Reservation, error)
	Transition(ctx context.Context, actor model.Identity, id uint64, patch model.ReservationPatch) (*model.Reservation, error)
	Delete(ctx context.Context, actor model.Identity, id uint64) error
	Get(ctx context.Context, actor model.Identity, id uint64) (*model.Reservation, error)
	List(ctx context.Context, actor model.Identity, f model.ReservationFilter) ([]model.Reservation, error)
}

// ReservationHandler serves /v1/reservations and POST /v1/trips/:id/reservations.
type ReservationHandler struct {
	Reservations ReservationService
	Cache        CacheBumper
}

func NewReservationHandler(svc ReservationService, cache CacheBumper) *ReservationHandler {
	if cache == nil {
		cache = noopBumper{}
	}
	return &ReservationHandler{Reservations: svc, Cache: cache}
}

type createReservationReq struct {
	PickupLat *float64 `json:"pickup_lat" validate:"omitempty,gte=-90,lte=90"`
	PickupLon *float64 `json:"pickup_lon" validate:"omitempty,gte=-180,lte=180"`
}

type patchReservationReq struct {
	Status    *string  `json:"status"`
	PickupLat *float64 `json:"pickup_lat" validate:"omitempty,gte=-90,lte=90"`
	PickupLon *float64 `json:"pickup_lon" validate:"omitempty,gte=-180,lte=180"`
}

// Create books a seat on the trip in the path for the calling student.
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	tripID, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req createReservationReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	res, err := h.Reservations.Create(ctx, actor, tripID, service.Pickup{Lat: req.PickupLat, Lon: req.PickupLon})
	if err != nil {
		return writeError(c, err)
	}
	h.bump(c)
	return c.JSON(http.StatusCreated, res)
}

// Update applies a merge-patch: status and/or pickup coordinates.
func (h *ReservationHandler) Update(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req patchReservationReq
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	patch := model.ReservationPatch{PickupLat: req.PickupLat, PickupLon: req.PickupLon}
	if req.Status != nil {
		st := model.ParseReservationStatus(*req.Status)
		patch.Status = &st
	}
	res, err := h.Reservations.Transition(c.Request().Context(), actor, id, patch)
	if err != nil {
		return writeError(c, err)
	}
	if patch.Status != nil {
		h.bump(c)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete removes a reservation and answers {"id": n}.
func (h *ReservationHandler) Delete(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Reservations.Delete(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	h.bump(c)
	return c.JSON(http.StatusOK, echo.Map{"id": id})
}

func (h *ReservationHandler) Get(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.Reservations.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// List returns the caller's reservations.  Admins may filter with
// ?trip_id=, ?student_id= and ?status=.
func (h *ReservationHandler) List(c echo.Context) error {
	actor, err := identity(c)
	if err != nil {
		return writeError(c, err)
	}
	var f model.ReservationFilter
	if err := echo.QueryParamsBinder(c).
		Uint64("trip_id", &f.TripID).
		Uint64("student_id", &f.StudentID).
		BindError(); err != nil {
		return writeError(c, validationf("invalid query: %v", err))
	}
	if s := c.QueryParam("status"); s != "" {
		f.Status = model.ParseReservationStatus(s)
	}
	list, err := h.Reservations.List(c.Request().Context(), actor, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}

// bump drops cached trip listings whose seat counts may have changed.
func (h *ReservationHandler) bump(c echo.Context) {
	if err := h.Cache.Bump(c.Request().Context()); err != nil {
		c.Logger().Warnf("cache bump: %v", err)
	}
}
