// Package handler exposes the reservation core over HTTP.  Handlers are
// thin: every state change goes through the engine and every read through
// the store, so the HTTP layer never decides seat ownership itself.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/college-bus-booking/internal/cart"
	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// Messages shown to the user as-is.
const (
	msgSeatTaken = "seat was just taken"
	msgRetry     = "please try again"
)

// respondError maps core errors onto status codes.  A conflict is an
// expected outcome and carries the seats involved when known.
func respondError(c echo.Context, err error) error {
	var rejected *cart.RejectedError
	var conflict *store.SeatConflictError
	switch {
	case errors.As(err, &rejected):
		return c.JSON(http.StatusConflict, echo.Map{"error": msgSeatTaken, "seat_ids": rejected.SeatIDs(), "rejected": rejected.Seats})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": msgSeatTaken, "seat_ids": conflict.SeatIDs})
	case errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": msgSeatTaken})
	case errors.Is(err, engine.ErrInvalidRequest), errors.Is(err, cart.ErrEmptySelection):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, store.ErrTripNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
	case errors.Is(err, store.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
	case errors.Is(err, store.ErrTripExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "trip already exists"})
	case errors.Is(err, store.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": msgRetry})
	}
	c.Logger().Errorf("unhandled error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msgRetry})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
