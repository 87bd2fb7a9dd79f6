package router

import (
	"github.com/labstack/echo/v4"

	"github.com/puce-ride/appride/internal/handler"
	"github.com/puce-ride/appride/internal/middleware"
	"github.com/puce-ride/appride/internal/model"
)

// RegisterUsers registers profile editing on /v1/me and the user
// administration endpoints.  Reading one user is open to that user and to
// admins; everything else under /v1/users is admin only.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, jwtSecret string) {
	jwt := middleware.JWTAuth(jwtSecret)
	e.PATCH("/v1/me", h.UpdateMe, jwt)

	g := e.Group("/v1/users")
	g.GET("/:id", h.Get, jwt)

	admin := []echo.MiddlewareFunc{jwt, middleware.RequireRole(model.RoleAdmin)}
	g.GET("", h.List, admin...)
	g.POST("", h.Create, admin...)
	g.PUT("/:id", h.Update, admin...)
	g.PATCH("/:id", h.Update, admin...)
	g.DELETE("/:id", h.Delete, admin...)
}
