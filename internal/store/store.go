// Package store defines the contract between the reservation core and the
// transactional seat/booking store.  The only mutation primitive for seats
// is a guarded update: a write succeeds only if the row still matches the
// caller's expectation, which is how concurrent holders are arbitrated.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
)

// ErrConflict is returned when a guarded update finds the row in a state
// other than the one expected.  It is a routine outcome, not a failure.
var ErrConflict = errors.New("store: seat state conflict")

// ErrSeatNotFound is returned when a seat id does not exist on the trip.
var ErrSeatNotFound = errors.New("store: seat not found")

// ErrTripNotFound is returned when a trip id does not exist.
var ErrTripNotFound = errors.New("store: trip not found")

// ErrTripExists is returned when a trip id is provisioned twice.
var ErrTripExists = errors.New("store: trip already exists")

// ErrUnavailable wraps transport or engine failures of the backing store.
// Reads may be retried by the caller; writes are left to the user to retry.
var ErrUnavailable = errors.New("store: unavailable")

// Expect is the guard of a conditional seat update.  Status must always
// match.  The remaining fields are checked only when set.
type Expect struct {
	Status model.SeatStatus
	// Holder must equal the current lock holder.
	Holder string
	// Version must equal the current row version.
	Version uint64
	// ExpiredBy requires a held seat whose expiry is at or before it.
	ExpiredBy time.Time
}

// Matches reports whether seat satisfies the guard.
func (e Expect) Matches(seat model.Seat) bool {
	if seat.Status != e.Status {
		return false
	}
	if e.Holder != "" && seat.HolderID != e.Holder {
		return false
	}
	if e.Version != 0 && seat.Version != e.Version {
		return false
	}
	if !e.ExpiredBy.IsZero() && !seat.HoldExpired(e.ExpiredBy) {
		return false
	}
	return true
}

// SeatChange is the new state written by a conditional update.  Holder and
// HoldExpiresAt are stored only for the held status and cleared otherwise.
type SeatChange struct {
	Status        model.SeatStatus
	Holder        string
	HoldExpiresAt time.Time
}

// Apply returns seat with the change written and its version bumped.
func (c SeatChange) Apply(seat model.Seat, at time.Time) model.Seat {
	seat.Status = c.Status
	seat.HolderID = ""
	seat.HoldExpiresAt = nil
	if c.Status == model.StatusHeld {
		exp := c.HoldExpiresAt.UTC()
		seat.HolderID = c.Holder
		seat.HoldExpiresAt = &exp
	}
	seat.Version++
	seat.UpdatedAt = at.UTC()
	return seat
}

// Available is the change that clears a hold.
func Available() SeatChange { return SeatChange{Status: model.StatusAvailable} }

// BookingRequest describes a booking to confirm atomically.  Each seat must
// be available, held by HolderID, or held under an expired lock at Now.
type BookingRequest struct {
	BookingID   string
	Reference   string
	TripID      string
	HolderID    string
	SeatIDs     []string
	TotalAmount int64
	PaymentRef  string
	Now         time.Time
}

// Bookable reports whether seat may be included in a booking by holderID at now.
func Bookable(seat model.Seat, holderID string, now time.Time) bool {
	switch seat.Status {
	case model.StatusAvailable:
		return true
	case model.StatusHeld:
		return seat.HolderID == holderID || seat.HoldExpired(now)
	}
	return false
}

// SeatConflictError lists the seats that blocked an all-or-nothing booking.
// It matches ErrConflict under errors.Is.
type SeatConflictError struct {
	SeatIDs []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("store: seats not bookable: %s", strings.Join(e.SeatIDs, ","))
}

func (e *SeatConflictError) Unwrap() error { return ErrConflict }

// SeatStore is the seat half of the store contract.
type SeatStore interface {
	ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error)
	GetSeat(ctx context.Context, tripID, seatID string) (model.Seat, error)
	UpdateSeat(ctx context.Context, tripID, seatID string, expect Expect, change SeatChange) (model.Seat, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error)
}

// BookingStore confirms and lists bookings.
type BookingStore interface {
	ConfirmBooking(ctx context.Context, req BookingRequest) (model.Booking, []model.Seat, error)
	BookingsForHolder(ctx context.Context, holderID string) ([]model.Booking, error)
}

// TripStore reads trips.
type TripStore interface {
	GetTrip(ctx context.Context, tripID string) (model.Trip, error)
}

// TripWriter provisions trips.  A trip and all of its seats are created
// together; the seat count never changes afterwards.
type TripWriter interface {
	CreateTrip(ctx context.Context, trip model.Trip, seats []model.Seat) error
}

// Store is the full contract consumed by the engine and the HTTP layer.
type Store interface {
	SeatStore
	BookingStore
	TripStore
}
