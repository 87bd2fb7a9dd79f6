package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/puce-ride/appride/internal/handler"
	"github.com/puce-ride/appride/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// the health check and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo, health *handler.Health) {
	e.GET("/healthz", health.Handle)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers all authentication-related routes.  Register,
// login, refresh and single-session logout live under /v1/auth and need no
// access token; /v1/me and /v1/logout (every session) do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)

	jwt := middleware.JWTAuth(jwtSecret)
	e.GET("/v1/me", a.Me, jwt)
	e.POST("/v1/logout", a.LogoutAll, jwt)
}
