package main

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

const demoTripID = "demo-campus-express"

// seedDemoTrip provisions a 41 seat trip leaving tomorrow morning so a
// fresh development database has something to book.  It is a no-op when
// the trip exists.
func seedDemoTrip(ctx context.Context, w store.TripWriter, now time.Time) error {
	day := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	trip := model.Trip{
		ID:            demoTripID,
		Route:         "North Hostel - Main Campus",
		FarePerSeat:   4500,
		TotalSeats:    41,
		DepartsAt:     day.Add(7*time.Hour + 30*time.Minute),
		ArrivesAt:     day.Add(8*time.Hour + 15*time.Minute),
		CapacityClass: "STANDARD",
	}
	err := w.CreateTrip(ctx, trip, model.LayoutSeats(trip.ID, trip.TotalSeats))
	if errors.Is(err, store.ErrTripExists) {
		return nil
	}
	return err
}
