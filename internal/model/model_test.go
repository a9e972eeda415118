package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeat_Validate(t *testing.T) {
	exp := time.Now().Add(time.Hour)

	assert.NoError(t, Seat{Status: StatusAvailable}.Validate())
	assert.NoError(t, Seat{Status: StatusBooked}.Validate())
	assert.NoError(t, Seat{Status: StatusHeld, HolderID: "u1", HoldExpiresAt: &exp}.Validate())

	assert.Error(t, Seat{Status: "reserved"}.Validate())
	assert.Error(t, Seat{Status: StatusHeld, HolderID: "u1"}.Validate())
	assert.Error(t, Seat{Status: StatusBooked, HolderID: "u1"}.Validate())
	assert.Error(t, Seat{Status: StatusAvailable, HoldExpiresAt: &exp}.Validate())
}

func TestSeat_Effective(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	expired := Seat{ID: "7", Status: StatusHeld, HolderID: "a", HoldExpiresAt: &past, Version: 3}
	got := expired.Effective(now)
	assert.Equal(t, StatusAvailable, got.Status)
	assert.Empty(t, got.HolderID)
	assert.Nil(t, got.HoldExpiresAt)
	assert.Equal(t, uint64(3), got.Version)
	// the original is untouched
	assert.Equal(t, StatusHeld, expired.Status)

	atNow := Seat{Status: StatusHeld, HolderID: "a", HoldExpiresAt: &now}
	assert.True(t, atNow.HoldExpired(now), "expiry equal to now counts as expired")

	live := Seat{Status: StatusHeld, HolderID: "a", HoldExpiresAt: &future}
	assert.Equal(t, StatusHeld, live.Effective(now).Status)
	assert.True(t, live.HeldBy("a", now))
	assert.False(t, live.HeldBy("b", now))
}

func TestLayoutSeats(t *testing.T) {
	seats := LayoutSeats("trip-1", 41)
	require.Len(t, seats, 41)

	assert.Equal(t, "1", seats[0].ID)
	assert.Equal(t, "41", seats[40].ID)

	rows := ArrangeRows(seats)
	require.Len(t, rows, 10)
	for _, r := range rows[:9] {
		assert.Len(t, r.Left, 2)
		assert.Len(t, r.Right, 2)
		assert.Empty(t, r.Back)
	}
	last := rows[9]
	assert.Len(t, last.Back, 5)
	assert.Equal(t, "37", last.Back[0].ID)
	assert.Equal(t, "41", last.Back[4].ID)
}

func TestArrangeRows_PartialLastRow(t *testing.T) {
	rows := ArrangeRows(LayoutSeats("t", 10))
	require.Len(t, rows, 3)
	assert.Len(t, rows[2].Left, 2)
	assert.Empty(t, rows[2].Right)
	assert.Empty(t, rows[2].Back)
}
