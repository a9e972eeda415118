// Package router registers the HTTP routes of the booking API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/college-bus-booking/internal/handler"
	"github.com/iliyamo/college-bus-booking/internal/middleware"
)

// RegisterRoutes registers routes that need no store, currently the health
// check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the read-only trip routes guests can browse.
// cache wraps trip details only; seat state is never served from cache.
func RegisterPublic(e *echo.Echo, trips *handler.TripHandler, events *handler.EventsHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/trips/:id", trips.GetTrip, cache)
	e.GET("/v1/trips/:id/seats", trips.Seats)
	e.GET("/v1/trips/:id/events", events.Stream)
}

// RegisterHolder registers the routes that act for an authenticated seat
// holder.  limit guards the writes.
func RegisterHolder(e *echo.Echo, seats *handler.SeatHandler, bookings *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.POST("/trips/:id/seats/:seat/hold", seats.Hold, limit)
	g.DELETE("/trips/:id/seats/:seat/hold", seats.Release)
	g.POST("/trips/:id/checkout", bookings.Checkout, limit)
	g.GET("/my-bookings", bookings.MyBookings)
}

// RegisterAdmin registers trip provisioning for the transport office.
func RegisterAdmin(e *echo.Echo, trips *handler.TripHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole("admin"))
	g.POST("/trips", trips.CreateTrip)
}
