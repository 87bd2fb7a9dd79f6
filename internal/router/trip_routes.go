package router

import (
	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/handler"
	"github.com/puce-ride/appride/internal/middleware"
	"github.com/puce-ride/appride/internal/model"
)

// RegisterTrips registers the trip endpoints.  Reads are public and go
// through the response cache; writes need a DRIVER or ADMIN token and the
// handler checks trip ownership.
func RegisterTrips(e *echo.Echo, h *handler.TripHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/trips")
	g.GET("", h.List, cache)
	g.GET("/:id", h.Get, cache)

	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleDriver, model.RoleAdmin),
	}
	g.POST("", h.Create, auth...)
	g.PATCH("/:id", h.Update, auth...)
	g.DELETE("/:id", h.Delete, auth...)
}
