package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func held(id, holder string, exp time.Time, version uint64) model.Seat {
	return model.Seat{ID: id, TripID: "T", Status: model.StatusHeld, HolderID: holder, HoldExpiresAt: &exp, Version: version}
}

func avail(id string, version uint64) model.Seat {
	return model.Seat{ID: id, TripID: "T", Status: model.StatusAvailable, Version: version}
}

func TestSeatMap_LastWriteWinsByVersion(t *testing.T) {
	m := NewSeatMap("T")
	m.Replace([]model.Seat{avail("1", 1), avail("2", 1)})

	assert.True(t, m.Apply(feed.SeatChanged(held("1", "a", now.Add(time.Hour), 3), now)))
	assert.False(t, m.Apply(feed.SeatChanged(held("1", "b", now.Add(time.Hour), 2), now)), "older version arrives late")
	assert.False(t, m.Apply(feed.SeatChanged(held("1", "a", now.Add(time.Hour), 3), now)), "duplicate")

	s, ok := m.Seat("1", now)
	require.True(t, ok)
	assert.Equal(t, "a", s.HolderID)
	assert.Equal(t, uint64(3), s.Version)
}

func TestSeatMap_OutOfOrderAcrossSeats(t *testing.T) {
	m := NewSeatMap("T")
	m.Replace([]model.Seat{avail("1", 1), avail("2", 1)})

	// Seat 2's later write is delivered before seat 1's earlier one.
	assert.True(t, m.Apply(feed.SeatChanged(model.Seat{ID: "2", TripID: "T", Status: model.StatusBooked, Version: 2}, now)))
	assert.True(t, m.Apply(feed.SeatChanged(held("1", "a", now.Add(time.Hour), 2), now)))

	s1, _ := m.Seat("1", now)
	s2, _ := m.Seat("2", now)
	assert.Equal(t, model.StatusHeld, s1.Status)
	assert.Equal(t, model.StatusBooked, s2.Status)
}

func TestSeatMap_ExpiredHoldReadsAsAvailable(t *testing.T) {
	m := NewSeatMap("T")
	m.Apply(feed.SeatChanged(held("7", "a", now.Add(time.Minute), 2), now))

	s, _ := m.Seat("7", now)
	assert.Equal(t, model.StatusHeld, s.Status)

	s, _ = m.Seat("7", now.Add(time.Minute))
	assert.Equal(t, model.StatusAvailable, s.Status, "expiry equal to now counts as lapsed")
	assert.Empty(t, s.HolderID)
	assert.Nil(t, s.HoldExpiresAt)

	raw := m.Raw()
	require.Len(t, raw, 1)
	assert.Equal(t, model.StatusHeld, raw[0].Status, "normalisation never rewrites the stored row")

	one, ok := m.RawSeat("7")
	require.True(t, ok)
	assert.True(t, one.HoldExpired(now.Add(time.Minute)))
	_, ok = m.RawSeat("8")
	assert.False(t, ok)
}

func TestSeatMap_ReplaceKeepsNewerLocalRows(t *testing.T) {
	m := NewSeatMap("T")
	m.Apply(feed.SeatChanged(held("1", "a", now.Add(time.Hour), 5), now))
	m.Replace([]model.Seat{avail("1", 4), avail("2", 1)})

	s, _ := m.Seat("1", now)
	assert.Equal(t, uint64(5), s.Version)
	assert.Equal(t, 2, m.Len())

	m.Replace([]model.Seat{avail("1", 6)})
	s, _ = m.Seat("1", now)
	assert.Equal(t, model.StatusAvailable, s.Status)
	_, ok := m.Seat("2", now)
	assert.False(t, ok)
}

func TestSeatMap_BookingEventsAndForeignTrips(t *testing.T) {
	m := NewSeatMap("T")
	b := model.Booking{ID: "b1", TripID: "T", HolderID: "u", SeatIDs: []string{"3", "4"}, Status: model.BookingConfirmed}

	assert.True(t, m.Apply(feed.BookingChanged(b, now)))
	assert.False(t, m.Apply(feed.BookingChanged(b, now)))
	h, ok := m.HolderOf("4")
	assert.True(t, ok)
	assert.Equal(t, "u", h)

	other := avail("1", 9)
	other.TripID = "X"
	assert.False(t, m.Apply(feed.SeatChanged(other, now)))
	assert.Zero(t, m.Len())
}

func TestSeatMap_SnapshotLayoutOrder(t *testing.T) {
	m := NewSeatMap("T")
	m.Replace(model.LayoutSeats("T", 9))
	snap := m.Snapshot(now)
	require.Len(t, snap, 9)
	for i := 1; i < len(snap); i++ {
		prev, cur := snap[i-1], snap[i]
		assert.True(t, prev.Row < cur.Row || (prev.Row == cur.Row && prev.Col < cur.Col))
	}
}
