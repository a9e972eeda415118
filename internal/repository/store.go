package repository

import (
	"database/sql"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/store"
)

// Store is the MySQL implementation of store.Store.
type Store struct {
	*TripRepo
	*SeatRepo
	*BookingRepo
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.TripWriter = (*Store)(nil)
)

// NewStore wires the repositories over one connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		TripRepo:    NewTripRepo(db),
		SeatRepo:    NewSeatRepo(db),
		BookingRepo: NewBookingRepo(db),
	}
}

// SetClock overrides the clock used for updated_at and created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.SeatRepo.now = now
	s.BookingRepo.now = now
}
