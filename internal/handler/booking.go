package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/college-bus-booking/internal/cart"
	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/middleware"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

// BookingStore reads what checkout validates against and what a holder
// has booked.
type BookingStore interface {
	cart.Loader
	BookingsForHolder(ctx context.Context, holderID string) ([]model.Booking, error)
}

// BookingHandler runs checkout and lists bookings.
type BookingHandler struct {
	Store  BookingStore
	Booker cart.Booker
	Now    func() time.Time
}

func NewBookingHandler(st BookingStore, booker cart.Booker) *BookingHandler {
	if st == nil || booker == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Store: st, Booker: booker, Now: time.Now}
}

type checkoutRequest struct {
	SeatIDs    []string `json:"seat_ids"`
	PaymentRef string   `json:"payment_ref"`
	Email      string   `json:"email"`
}

// Checkout handles POST /v1/trips/:id/checkout.  The selection is
// re-validated against the current seats before anything is written, then
// booked in one transaction.  A 409 names the seats that blocked it.
func (h *BookingHandler) Checkout(c echo.Context) error {
	holder := middleware.HolderID(c)
	if holder == "" {
		return unauthorized(c)
	}
	var body checkoutRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	email := body.Email
	if email == "" {
		email = middleware.Email(c)
	}
	sel := cart.New(c.Param("id"), body.SeatIDs...)
	b, err := sel.Checkout(c.Request().Context(), h.Store, h.Booker, holder,
		engine.Payment{Ref: body.PaymentRef, Email: email}, h.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// MyBookings handles GET /v1/my-bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	holder := middleware.HolderID(c)
	if holder == "" {
		return unauthorized(c)
	}
	items, err := h.Store.BookingsForHolder(c.Request().Context(), holder)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
