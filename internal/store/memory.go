package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
)

type seatKey struct {
	trip string
	seat string
}

// Memory is an in-process Store.  A single mutex serialises every write,
// which gives each guarded update compare-and-swap semantics and makes a
// booking confirmation atomic.  It backs tests and FEED_BACKEND=memory
// development runs.
type Memory struct {
	mu       sync.Mutex
	trips    map[string]model.Trip
	seats    map[seatKey]model.Seat
	order    map[string][]string
	bookings []model.Booking
	now      func() time.Time
	fault    func(op string) error
}

var (
	_ Store      = (*Memory)(nil)
	_ TripWriter = (*Memory)(nil)
)

// NewMemory returns an empty store using the wall clock for UpdatedAt.
func NewMemory() *Memory {
	return &Memory{
		trips: make(map[string]model.Trip),
		seats: make(map[seatKey]model.Seat),
		order: make(map[string][]string),
		now:   time.Now,
	}
}

// SetClock overrides the clock used for UpdatedAt stamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetFault installs a hook consulted before every operation.  A non-nil
// return is wrapped in ErrUnavailable and returned to the caller.  Passing
// nil removes the hook.
func (m *Memory) SetFault(fn func(op string) error) {
	m.mu.Lock()
	m.fault = fn
	m.mu.Unlock()
}

func (m *Memory) check(op string) error {
	if m.fault == nil {
		return nil
	}
	if err := m.fault(op); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return nil
}

// AddTrip provisions a trip and its seats.  Seats keep the positions and
// versions they are given.
func (m *Memory) AddTrip(trip model.Trip, seats []model.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addTrip(trip, seats)
}

func (m *Memory) addTrip(trip model.Trip, seats []model.Seat) {
	m.trips[trip.ID] = trip
	ids := make([]string, 0, len(seats))
	for _, s := range seats {
		s.TripID = trip.ID
		if s.Version == 0 {
			s.Version = 1
		}
		m.seats[seatKey{trip.ID, s.ID}] = s.Clone()
		ids = append(ids, s.ID)
	}
	m.order[trip.ID] = ids
}

// CreateTrip is AddTrip with the TripWriter contract: it fails with
// ErrTripExists instead of replacing a provisioned trip.
func (m *Memory) CreateTrip(ctx context.Context, trip model.Trip, seats []model.Seat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create_trip"); err != nil {
		return err
	}
	if _, ok := m.trips[trip.ID]; ok {
		return ErrTripExists
	}
	trip.TotalSeats = len(seats)
	m.addTrip(trip, seats)
	return nil
}

// PutSeat overwrites a seat row as-is.  Tests use it to arrange states such
// as holds that have already expired.
func (m *Memory) PutSeat(seat model.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := seatKey{seat.TripID, seat.ID}
	if _, ok := m.seats[k]; !ok {
		m.order[seat.TripID] = append(m.order[seat.TripID], seat.ID)
	}
	m.seats[k] = seat.Clone()
}

func (m *Memory) GetTrip(ctx context.Context, tripID string) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get_trip"); err != nil {
		return model.Trip{}, err
	}
	t, ok := m.trips[tripID]
	if !ok {
		return model.Trip{}, ErrTripNotFound
	}
	return t, nil
}

func (m *Memory) ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("read_seats"); err != nil {
		return nil, err
	}
	if _, ok := m.trips[tripID]; !ok {
		return nil, ErrTripNotFound
	}
	ids := m.order[tripID]
	out := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.seats[seatKey{tripID, id}].Clone())
	}
	return out, nil
}

func (m *Memory) GetSeat(ctx context.Context, tripID, seatID string) (model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("get_seat"); err != nil {
		return model.Seat{}, err
	}
	s, ok := m.seats[seatKey{tripID, seatID}]
	if !ok {
		return model.Seat{}, ErrSeatNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) UpdateSeat(ctx context.Context, tripID, seatID string, expect Expect, change SeatChange) (model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("update_seat"); err != nil {
		return model.Seat{}, err
	}
	k := seatKey{tripID, seatID}
	cur, ok := m.seats[k]
	if !ok {
		return model.Seat{}, ErrSeatNotFound
	}
	if !expect.Matches(cur) {
		return model.Seat{}, ErrConflict
	}
	next := change.Apply(cur, m.now())
	m.seats[k] = next
	return next.Clone(), nil
}

func (m *Memory) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("list_expired"); err != nil {
		return nil, err
	}
	var out []model.Seat
	for _, s := range m.seats {
		if s.HoldExpired(now) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ConfirmBooking(ctx context.Context, req BookingRequest) (model.Booking, []model.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("confirm_booking"); err != nil {
		return model.Booking{}, nil, err
	}
	if _, ok := m.trips[req.TripID]; !ok {
		return model.Booking{}, nil, ErrTripNotFound
	}

	// Validate every seat before touching any of them.
	var blocked []string
	for _, id := range req.SeatIDs {
		cur, ok := m.seats[seatKey{req.TripID, id}]
		if !ok {
			return model.Booking{}, nil, fmt.Errorf("%w: %s", ErrSeatNotFound, id)
		}
		if !Bookable(cur, req.HolderID, req.Now) {
			blocked = append(blocked, id)
		}
	}
	if len(blocked) > 0 {
		return model.Booking{}, nil, &SeatConflictError{SeatIDs: blocked}
	}

	at := m.now()
	seats := make([]model.Seat, 0, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		k := seatKey{req.TripID, id}
		next := SeatChange{Status: model.StatusBooked}.Apply(m.seats[k], at)
		m.seats[k] = next
		seats = append(seats, next.Clone())
	}
	b := model.Booking{
		ID:          req.BookingID,
		Reference:   req.Reference,
		HolderID:    req.HolderID,
		TripID:      req.TripID,
		SeatIDs:     append([]string(nil), req.SeatIDs...),
		TotalAmount: req.TotalAmount,
		Status:      model.BookingConfirmed,
		PaymentRef:  req.PaymentRef,
		CreatedAt:   at.UTC(),
	}
	m.bookings = append(m.bookings, b)
	return b, seats, nil
}

func (m *Memory) BookingsForHolder(ctx context.Context, holderID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("bookings_for_holder"); err != nil {
		return nil, err
	}
	out := make([]model.Booking, 0)
	for i := len(m.bookings) - 1; i >= 0; i-- {
		if m.bookings[i].HolderID == holderID {
			b := m.bookings[i]
			b.SeatIDs = append([]string(nil), b.SeatIDs...)
			out = append(out, b)
		}
	}
	return out, nil
}

// Bookings returns every stored booking, oldest first.
func (m *Memory) Bookings() []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Booking(nil), m.bookings...)
}
