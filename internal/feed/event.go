// Package feed carries row-level seat and booking changes to every viewer
// of a trip.  Events are published on a per-trip topic over watermill and
// received through cancellable subscriptions.
package feed

import (
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindSeatChanged    Kind = "seat_changed"
	KindBookingChanged Kind = "booking_changed"
)

// Event is a single change notification.  Exactly one of Seat or Booking is
// set, matching Kind.
type Event struct {
	Kind       Kind           `json:"kind"`
	TripID     string         `json:"trip_id"`
	Seat       *model.Seat    `json:"seat,omitempty"`
	Booking    *model.Booking `json:"booking,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// SeatChanged builds the event announcing the new state of a seat row.
func SeatChanged(seat model.Seat, at time.Time) Event {
	s := seat.Clone()
	return Event{Kind: KindSeatChanged, TripID: seat.TripID, Seat: &s, OccurredAt: at.UTC()}
}

// BookingChanged builds the event announcing a booking row.
func BookingChanged(b model.Booking, at time.Time) Event {
	return Event{Kind: KindBookingChanged, TripID: b.TripID, Booking: &b, OccurredAt: at.UTC()}
}

func (e Event) valid() bool {
	switch e.Kind {
	case KindSeatChanged:
		return e.Seat != nil && e.TripID != ""
	case KindBookingChanged:
		return e.Booking != nil && e.TripID != ""
	}
	return false
}
