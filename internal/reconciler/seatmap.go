// Package reconciler keeps a local projection of a trip's seats in step
// with the store by merging change-feed events into it.
package reconciler

import (
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

// SeatMap is the local view of one trip.  Rows are kept exactly as received
// and normalised on read, so a hold that lapses after it was received is
// shown as available without another event.
//
// Merging is last-write-wins per seat by Version: an event whose version is
// not newer than the local row is stale or a duplicate and is dropped.
type SeatMap struct {
	tripID string

	mu       sync.RWMutex
	seats    map[string]model.Seat
	bookings map[string]model.Booking
	holders  map[string]string
}

// NewSeatMap returns an empty map for tripID.
func NewSeatMap(tripID string) *SeatMap {
	return &SeatMap{
		tripID:   tripID,
		seats:    make(map[string]model.Seat),
		bookings: make(map[string]model.Booking),
		holders:  make(map[string]string),
	}
}

// TripID returns the trip this map tracks.
func (m *SeatMap) TripID() string { return m.tripID }

// Replace merges a full snapshot.  A local row that is already newer than
// the snapshot row survives, so a refresh never moves a seat backwards.
func (m *SeatMap) Replace(snapshot []model.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]model.Seat, len(snapshot))
	for _, s := range snapshot {
		if s.TripID != "" && s.TripID != m.tripID {
			continue
		}
		if cur, ok := m.seats[s.ID]; ok && cur.Version > s.Version {
			next[s.ID] = cur
			continue
		}
		next[s.ID] = s.Clone()
	}
	m.seats = next
}

// Apply merges one event and reports whether the map changed.
func (m *SeatMap) Apply(ev feed.Event) bool {
	if ev.TripID != m.tripID {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Kind {
	case feed.KindSeatChanged:
		if ev.Seat == nil {
			return false
		}
		if cur, ok := m.seats[ev.Seat.ID]; ok && ev.Seat.Version <= cur.Version {
			return false
		}
		m.seats[ev.Seat.ID] = ev.Seat.Clone()
		return true
	case feed.KindBookingChanged:
		if ev.Booking == nil {
			return false
		}
		if _, seen := m.bookings[ev.Booking.ID]; seen {
			return false
		}
		b := *ev.Booking
		b.SeatIDs = append([]string(nil), b.SeatIDs...)
		m.bookings[b.ID] = b
		if b.Status == model.BookingConfirmed {
			for _, id := range b.SeatIDs {
				m.holders[id] = b.HolderID
			}
		}
		return true
	}
	return false
}

// Seat returns the normalised state of a seat at now.
func (m *SeatMap) Seat(id string, now time.Time) (model.Seat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.seats[id]
	if !ok {
		return model.Seat{}, false
	}
	return s.Clone().Effective(now), true
}

// RawSeat returns a seat as last received, without normalisation.
func (m *SeatMap) RawSeat(id string) (model.Seat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.seats[id]
	if !ok {
		return model.Seat{}, false
	}
	return s.Clone(), true
}

// Snapshot returns every seat normalised at now, in layout order.
func (m *SeatMap) Snapshot(now time.Time) []model.Seat {
	out := m.Raw()
	for i := range out {
		out[i] = out[i].Effective(now)
	}
	return out
}

// Raw returns every seat as last received, in layout order.  The sweeper
// reads it to find holds that lapsed but were never released.
func (m *SeatMap) Raw() []model.Seat {
	m.mu.RLock()
	out := make([]model.Seat, 0, len(m.seats))
	for _, s := range m.seats {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		if out[i].Col != out[j].Col {
			return out[i].Col < out[j].Col
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// HolderOf returns who booked a seat, as learnt from booking events.
func (m *SeatMap) HolderOf(seatID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[seatID]
	return h, ok
}

// Len returns the number of seats known.
func (m *SeatMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seats)
}
