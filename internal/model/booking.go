package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	// BookingCancelled exists in the schema but nothing transitions into it
	// yet; bookings are permanent.
	BookingCancelled BookingStatus = "cancelled"
)

// Booking records a confirmed purchase of one or more seats on a trip.
// Every seat referenced by a confirmed booking is in the booked state and
// appears in no other confirmed booking.
//
// Fields:
//  ID          – unique booking identifier (UUID).
//  Reference   – short code shown on tickets.
//  HolderID    – identity that paid for the seats.
//  TripID      – trip the seats belong to.
//  SeatIDs     – seats covered by the booking.
//  TotalAmount – amount charged in minor currency units.
//  Status      – confirmed or cancelled.
//  PaymentRef  – external payment reference, if any.
//  CreatedAt   – creation timestamp.
type Booking struct {
	ID          string        `json:"id"`
	Reference   string        `json:"reference"`
	HolderID    string        `json:"holder_id"`
	TripID      string        `json:"trip_id"`
	SeatIDs     []string      `json:"seat_ids"`
	TotalAmount int64         `json:"total_amount"`
	Status      BookingStatus `json:"status"`
	PaymentRef  string        `json:"payment_ref,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
