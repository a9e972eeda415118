package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/college-bus-booking/internal/middleware"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

// Holder is the part of the engine that places and clears holds.
type Holder interface {
	Hold(ctx context.Context, tripID, seatID, holderID string, d time.Duration) (model.Seat, error)
	Release(ctx context.Context, tripID, seatID, holderID string) error
}

// SeatHandler places and releases holds for the authenticated holder.
type SeatHandler struct {
	Engine Holder
}

func NewSeatHandler(e Holder) *SeatHandler {
	if e == nil {
		panic("nil engine passed to NewSeatHandler")
	}
	return &SeatHandler{Engine: e}
}

// Hold handles POST /v1/trips/:id/seats/:seat/hold.  The hold length is the
// server default; clients cannot extend it.  Holding a seat the caller
// already holds returns the existing hold.
func (h *SeatHandler) Hold(c echo.Context) error {
	holder := middleware.HolderID(c)
	if holder == "" {
		return unauthorized(c)
	}
	seat, err := h.Engine.Hold(c.Request().Context(), c.Param("id"), c.Param("seat"), holder, 0)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, seat)
}

// Release handles DELETE /v1/trips/:id/seats/:seat/hold.  It succeeds
// whether or not the caller still held the seat.
func (h *SeatHandler) Release(c echo.Context) error {
	holder := middleware.HolderID(c)
	if holder == "" {
		return unauthorized(c)
	}
	if err := h.Engine.Release(c.Request().Context(), c.Param("id"), c.Param("seat"), holder); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true})
}
