package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// ErrEmptySelection is returned when checking out an empty cart.
var ErrEmptySelection = errors.New("cart: nothing selected")

// Reason explains why a selected seat cannot be bought.
type Reason string

const (
	ReasonBooked      Reason = "booked"
	ReasonHeldByOther Reason = "held_by_other"
	ReasonUnknown     Reason = "unknown_seat"
)

// Rejection is one seat refused at checkout.
type Rejection struct {
	SeatID string `json:"seat_id"`
	Reason Reason `json:"reason"`
}

// RejectedError lists the seats that blocked a checkout.  It matches
// store.ErrConflict under errors.Is.
type RejectedError struct {
	Seats []Rejection
}

func (e *RejectedError) Error() string {
	parts := make([]string, 0, len(e.Seats))
	for _, r := range e.Seats {
		parts = append(parts, r.SeatID+" ("+string(r.Reason)+")")
	}
	return "cart: seats no longer available: " + strings.Join(parts, ", ")
}

func (e *RejectedError) Unwrap() error { return store.ErrConflict }

// SeatIDs returns the refused seat ids.
func (e *RejectedError) SeatIDs() []string {
	out := make([]string, 0, len(e.Seats))
	for _, r := range e.Seats {
		out = append(out, r.SeatID)
	}
	return out
}

// View answers what a seat looks like at a point in time.  A
// reconciler.SeatMap is a View; Index builds one from a store snapshot.
type View interface {
	Seat(id string, now time.Time) (model.Seat, bool)
}

type index map[string]model.Seat

func (x index) Seat(id string, now time.Time) (model.Seat, bool) {
	s, ok := x[id]
	if !ok {
		return model.Seat{}, false
	}
	return s.Effective(now), true
}

// Index turns a seat snapshot into a View.
func Index(seats []model.Seat) View {
	x := make(index, len(seats))
	for _, s := range seats {
		x[s.ID] = s
	}
	return x
}

// Validate checks every selected seat against view at now.  A seat is
// refused when it is booked, or held by anyone but holderID under a hold
// that has not lapsed.
func Validate(selection []string, view View, holderID string, now time.Time) error {
	var rejected []Rejection
	for _, id := range selection {
		seat, ok := view.Seat(id, now)
		switch {
		case !ok:
			rejected = append(rejected, Rejection{SeatID: id, Reason: ReasonUnknown})
		case seat.Status == model.StatusBooked:
			rejected = append(rejected, Rejection{SeatID: id, Reason: ReasonBooked})
		case seat.Status == model.StatusHeld && seat.HolderID != holderID:
			rejected = append(rejected, Rejection{SeatID: id, Reason: ReasonHeldByOther})
		}
	}
	if len(rejected) > 0 {
		return &RejectedError{Seats: rejected}
	}
	return nil
}

// Loader reads the current seats of a trip.
type Loader interface {
	ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error)
}

// Booker confirms a checkout.
type Booker interface {
	BulkConfirmBooking(ctx context.Context, tripID string, seatIDs []string, holderID string, payment engine.Payment) (model.Booking, error)
}

// Checkout re-validates the selection against a fresh snapshot and books
// it.  The cart is cleared only when the booking succeeds.
func (c *Cart) Checkout(ctx context.Context, loader Loader, booker Booker, holderID string, payment engine.Payment, now time.Time) (model.Booking, error) {
	selection := c.Seats()
	if len(selection) == 0 {
		return model.Booking{}, ErrEmptySelection
	}
	seats, err := loader.ReadSeats(ctx, c.tripID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("checkout: read seats: %w", err)
	}
	if err := Validate(selection, Index(seats), holderID, now); err != nil {
		return model.Booking{}, err
	}
	b, err := booker.BulkConfirmBooking(ctx, c.tripID, selection, holderID, payment)
	if err != nil {
		return model.Booking{}, err
	}
	c.Clear()
	return b, nil
}
