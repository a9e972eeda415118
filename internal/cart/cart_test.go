package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/reconciler"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestCart_ToggleAndTotal(t *testing.T) {
	c := New("T")
	assert.True(t, c.Toggle("10"))
	assert.True(t, c.Toggle("2"))
	assert.True(t, c.Toggle("1"))
	assert.False(t, c.Toggle("2"))

	assert.Equal(t, []string{"1", "10"}, c.Seats())
	assert.True(t, c.Contains("10"))
	assert.False(t, c.Contains("2"))
	assert.Equal(t, int64(240), c.Total(120))

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Total(120))
}

func TestComputeTotal(t *testing.T) {
	assert.Equal(t, int64(0), ComputeTotal(0, 100))
	assert.Equal(t, int64(300), ComputeTotal(3, 100))
}

func TestSortSeatIDs(t *testing.T) {
	ids := []string{"B", "12", "3", "A", "41"}
	SortSeatIDs(ids)
	assert.Equal(t, []string{"3", "12", "41", "A", "B"}, ids)
}

func TestValidate(t *testing.T) {
	live := now.Add(time.Hour)
	lapsed := now.Add(-time.Minute)
	view := Index([]model.Seat{
		{ID: "1", Status: model.StatusAvailable},
		{ID: "2", Status: model.StatusBooked},
		{ID: "3", Status: model.StatusHeld, HolderID: "other", HoldExpiresAt: &live},
		{ID: "4", Status: model.StatusHeld, HolderID: "me", HoldExpiresAt: &live},
		{ID: "5", Status: model.StatusHeld, HolderID: "other", HoldExpiresAt: &lapsed},
	})

	assert.NoError(t, Validate([]string{"1", "4", "5"}, view, "me", now))

	err := Validate([]string{"1", "2", "3", "9"}, view, "me", now)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []Rejection{
		{SeatID: "2", Reason: ReasonBooked},
		{SeatID: "3", Reason: ReasonHeldByOther},
		{SeatID: "9", Reason: ReasonUnknown},
	}, rejected.Seats)
	assert.Equal(t, []string{"2", "3", "9"}, rejected.SeatIDs())
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestValidate_AgainstSeatMap(t *testing.T) {
	m := reconciler.NewSeatMap("T")
	m.Replace([]model.Seat{{ID: "1", TripID: "T", Status: model.StatusBooked, Version: 2}})
	err := Validate([]string{"1"}, m, "me", now)
	assert.ErrorIs(t, err, store.ErrConflict)
}

type checkoutFixture struct {
	mem *store.Memory
	eng *engine.Engine
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	mem := store.NewMemory()
	mem.AddTrip(model.Trip{ID: "T", FarePerSeat: 100, TotalSeats: 9}, model.LayoutSeats("T", 9))
	return checkoutFixture{mem: mem, eng: engine.New(mem, nil, zerolog.Nop(), engine.WithClock(func() time.Time { return now }))}
}

func TestCheckout_RejectsSeatBookedAfterSelection(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	c := New("T", "1", "2")

	_, err := f.eng.ConfirmBooking(ctx, "T", []string{"2"}, "someone", 100)
	require.NoError(t, err)

	_, err = c.Checkout(ctx, f.mem, f.eng, "me", engine.Payment{}, now)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, []string{"2"}, rejected.SeatIDs())
	assert.Equal(t, 2, c.Len(), "failed checkout keeps the selection")

	one, err := f.mem.GetSeat(ctx, "T", "1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, one.Status)
	assert.Len(t, f.mem.Bookings(), 1)
}

func TestCheckout_Success(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	_, err := f.eng.Hold(ctx, "T", "3", "me", 0)
	require.NoError(t, err)

	c := New("T", "3", "4")
	b, err := c.Checkout(ctx, f.mem, f.eng, "me", engine.Payment{Ref: "pay_1"}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.TotalAmount)
	assert.Equal(t, []string{"3", "4"}, b.SeatIDs)
	assert.Zero(t, c.Len())
}

func TestCheckout_EmptyAndStoreDown(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := New("T").Checkout(ctx, f.mem, f.eng, "me", engine.Payment{}, now)
	assert.ErrorIs(t, err, ErrEmptySelection)

	f.mem.SetFault(func(string) error { return errors.New("down") })
	c := New("T", "1")
	_, err = c.Checkout(ctx, f.mem, f.eng, "me", engine.Payment{}, now)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, 1, c.Len())
}
