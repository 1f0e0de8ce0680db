package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-show-booking/internal/handler"
	"github.com/iliyamo/cinema-show-booking/internal/middleware"
	"github.com/iliyamo/cinema-show-booking/internal/model"
)

// RegisterBookings registers the reservation endpoints.  Both roles may
// book; the rate limiter applies to POST only.  Middleware is attached per
// route so unknown /v1 paths stay 404 for anonymous callers.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	}
	e.POST("/v1/bookings", h.Create, append(auth, limiter)...)
	e.GET("/v1/bookings", h.ListMine, auth...)
}

// RegisterAdmin registers catalog management and the full booking ledger.
// Every route requires the ADMIN role.
func RegisterAdmin(e *echo.Echo, c *handler.CatalogHandler, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/events", c.CreateEvent)
	g.PUT("/events/:id", c.UpdateEvent)
	g.DELETE("/events/:id", c.DeleteEvent)
	g.POST("/events/:id/shows", c.CreateShow)
	g.DELETE("/shows/:id", c.DeleteShow)

	g.GET("/bookings", b.ListAll)
}
