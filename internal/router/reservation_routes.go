package router

import (
	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/handler"
	"github.com/puce-ride/appride/internal/middleware"
	"github.com/puce-ride/appride/internal/model"
)

// RegisterReservations registers the reservation endpoints.  Booking is for
// students only and is rate limited per user; the remaining routes accept
// any role and the engine scopes what each caller may see or change.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	jwt := middleware.JWTAuth(jwtSecret)

	e.POST("/v1/trips/:id/reservations", h.Create,
		jwt,
		middleware.RequireRole(model.RoleStudent),
		limiter,
	)

	g := e.Group("/v1/reservations")
	g.GET("", h.List, jwt)
	g.GET("/:id", h.Get, jwt)
	g.PATCH("/:id", h.Update, jwt)
	g.DELETE("/:id", h.Delete, jwt)
}
