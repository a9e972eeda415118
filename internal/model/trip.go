package model

import "time"

// Trip is one scheduled bus journey.  It owns a fixed set of seats created
// together with the trip; the seat count never changes afterwards.
//
// Fields:
//  ID            – primary key identifier.
//  Route         – human readable route description.
//  FarePerSeat   – price of a single seat in minor currency units.
//  TotalSeats    – number of seats provisioned for the trip.
//  DepartsAt     – scheduled departure.
//  ArrivesAt     – scheduled arrival.
//  CapacityClass – bus class (e.g. MINI, STANDARD, DOUBLE_DECKER).
type Trip struct {
	ID            string    `json:"id"`
	Route         string    `json:"route"`
	FarePerSeat   int64     `json:"fare_per_seat"`
	TotalSeats    int       `json:"total_seats"`
	DepartsAt     time.Time `json:"departs_at"`
	ArrivesAt     time.Time `json:"arrives_at"`
	CapacityClass string    `json:"capacity_class"`
}
