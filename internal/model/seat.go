package model

import (
	"errors"
	"time"
)

// SeatStatus is the availability state of a seat on a trip.  A seat is in
// exactly one of the three states at any time.
type SeatStatus string

const (
	StatusAvailable SeatStatus = "available"
	StatusHeld      SeatStatus = "held"
	StatusBooked    SeatStatus = "booked"
)

// Valid reports whether s is one of the known statuses.
func (s SeatStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusHeld, StatusBooked:
		return true
	}
	return false
}

// Seat describes one seat of a trip together with its current reservation
// state.  Seats are created once when a trip is provisioned and are never
// deleted while the trip exists; only their status moves.
//
// Fields:
//  ID            – unique seat identifier (scoped to the trip).
//  TripID        – trip the seat belongs to.
//  Row, Col      – position in the bus layout (zero-based).
//  Status        – available, held or booked.
//  HolderID      – identity holding the seat; set only when held.
//  HoldExpiresAt – when the hold lapses; set only when held.
//  Version       – incremented by the store on every write.
//  UpdatedAt     – time of the last write.
type Seat struct {
	ID            string     `json:"id"`
	TripID        string     `json:"trip_id"`
	Row           int        `json:"row"`
	Col           int        `json:"col"`
	Status        SeatStatus `json:"status"`
	HolderID      string     `json:"holder_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	Version       uint64     `json:"version"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

var (
	errUnknownStatus   = errors.New("seat: unknown status")
	errHoldMissing     = errors.New("seat: held seat without holder or expiry")
	errStrayHoldFields = errors.New("seat: hold metadata on a seat that is not held")
)

// Validate checks the hold-metadata invariants: a held seat has exactly one
// holder and an expiry, any other status carries neither.
func (s Seat) Validate() error {
	if !s.Status.Valid() {
		return errUnknownStatus
	}
	if s.Status == StatusHeld {
		if s.HolderID == "" || s.HoldExpiresAt == nil {
			return errHoldMissing
		}
		return nil
	}
	if s.HolderID != "" || s.HoldExpiresAt != nil {
		return errStrayHoldFields
	}
	return nil
}

// HoldExpired reports whether the seat is held and its expiry is at or
// before now.  Such a seat is logically available but still waits for a
// sweep to persist the transition.
func (s Seat) HoldExpired(now time.Time) bool {
	return s.Status == StatusHeld && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now)
}

// HeldBy reports whether holderID owns a live hold on the seat.
func (s Seat) HeldBy(holderID string, now time.Time) bool {
	return s.Status == StatusHeld && s.HolderID == holderID && !s.HoldExpired(now)
}

// Effective returns the seat as it should be displayed at now: an expired
// hold is shown as available.  The store row is not changed.
func (s Seat) Effective(now time.Time) Seat {
	if s.HoldExpired(now) {
		s.Status = StatusAvailable
		s.HolderID = ""
		s.HoldExpiresAt = nil
	}
	return s
}

// Clone returns a copy that does not share the expiry pointer.
func (s Seat) Clone() Seat {
	if s.HoldExpiresAt != nil {
		t := *s.HoldExpiresAt
		s.HoldExpiresAt = &t
	}
	return s
}
