package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-show-booking/internal/handler"
	"github.com/iliyamo/cinema-show-booking/internal/middleware"
	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// protected /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)               // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
}

// RegisterPublic registers catalog browsing.  Event routes go through the
// response cache.  Anything carrying booked seats is served live or through
// the availability cache the engine invalidates.
func RegisterPublic(e *echo.Echo, c *handler.CatalogHandler, respCache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/events", c.ListEvents, respCache)
	g.GET("/events/:id", c.GetEvent, respCache)
	g.GET("/events/:id/shows", c.ListShowsByEvent)
	g.GET("/shows", c.ListUpcomingShows)
	g.GET("/shows/:id", c.GetShow)
	g.GET("/shows/:id/availability", c.GetAvailability)
}
