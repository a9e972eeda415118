package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

var (
	now      = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	seatCols = []string{"trip_id", "seat_id", "row_idx", "col_idx", "status", "holder_id", "hold_expires_at", "version", "updated_at"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	s := NewStore(db)
	s.SetClock(func() time.Time { return now })
	return s, mock
}

func TestUpdateSeat_HoldWins(t *testing.T) {
	s, mock := newMockStore(t)
	exp := now.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE trip_seats SET status = \?, holder_id = \?, hold_expires_at = \?, version = version \+ 1`).
		WithArgs("held", "u1", exp, now, "T", "5", "available").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT trip_id, seat_id.* FROM trip_seats WHERE trip_id = \? AND seat_id = \?`).
		WithArgs("T", "5").
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("T", "5", 1, 0, "held", "u1", exp, 2, now))
	mock.ExpectCommit()

	seat, err := s.UpdateSeat(context.Background(), "T", "5",
		store.Expect{Status: model.StatusAvailable},
		store.SeatChange{Status: model.StatusHeld, Holder: "u1", HoldExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, model.StatusHeld, seat.Status)
	assert.Equal(t, "u1", seat.HolderID)
	assert.Equal(t, uint64(2), seat.Version)
	assert.NoError(t, seat.Validate())
}

func TestUpdateSeat_GuardMismatchIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE trip_seats .* AND status = \? AND holder_id = \? AND version = \? AND hold_expires_at <= \?`).
		WithArgs("available", nil, nil, now, "T", "7", "held", "a", uint64(3), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT trip_id, seat_id`).
		WithArgs("T", "7").
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("T", "7", 1, 2, "booked", nil, nil, 4, now))
	mock.ExpectRollback()

	_, err := s.UpdateSeat(context.Background(), "T", "7",
		store.Expect{Status: model.StatusHeld, Holder: "a", Version: 3, ExpiredBy: now}, store.Available())
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUpdateSeat_MissingSeat(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE trip_seats`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT trip_id, seat_id`).WithArgs("T", "99").WillReturnRows(sqlmock.NewRows(seatCols))
	mock.ExpectRollback()

	_, err := s.UpdateSeat(context.Background(), "T", "99", store.Expect{Status: model.StatusAvailable}, store.Available())
	assert.ErrorIs(t, err, store.ErrSeatNotFound)
}

func TestUpdateSeat_DriverFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("bad connection"))

	_, err := s.UpdateSeat(context.Background(), "T", "1", store.Expect{Status: model.StatusAvailable}, store.Available())
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, store.ErrConflict)
}

func TestReadSeats(t *testing.T) {
	s, mock := newMockStore(t)
	exp := now.Add(-time.Minute)
	mock.ExpectQuery(`FROM trip_seats WHERE trip_id = \? ORDER BY row_idx, col_idx`).
		WithArgs("T").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("T", "1", 0, 0, "available", nil, nil, 1, now).
			AddRow("T", "2", 0, 1, "held", "a", exp, 2, now))

	seats, err := s.ReadSeats(context.Background(), "T")
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Nil(t, seats[0].HoldExpiresAt)
	assert.True(t, seats[1].HoldExpired(now))
}

func TestReadSeats_UnknownTrip(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM trip_seats`).WithArgs("X").WillReturnRows(sqlmock.NewRows(seatCols))
	mock.ExpectQuery(`SELECT 1 FROM trips WHERE id = \?`).WithArgs("X").WillReturnError(sql.ErrNoRows)

	_, err := s.ReadSeats(context.Background(), "X")
	assert.ErrorIs(t, err, store.ErrTripNotFound)
}

func TestListExpiredHolds(t *testing.T) {
	s, mock := newMockStore(t)
	exp := now.Add(-time.Hour)
	mock.ExpectQuery(`WHERE status = \? AND hold_expires_at <= \? ORDER BY hold_expires_at LIMIT \?`).
		WithArgs("held", now, 50).
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("T", "7", 1, 2, "held", "a", exp, 3, now))

	seats, err := s.ListExpiredHolds(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, seats, 1)
	assert.Equal(t, "a", seats[0].HolderID)
}

func bookingRequest(seats ...string) store.BookingRequest {
	return store.BookingRequest{
		BookingID: "b-1", Reference: "CB-0000ABCD", TripID: "T", HolderID: "me",
		SeatIDs: seats, TotalAmount: int64(len(seats)) * 100, PaymentRef: "pay_1", Now: now,
	}
}

func TestConfirmBooking_Atomic(t *testing.T) {
	s, mock := newMockStore(t)
	mine := now.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM trips`).WithArgs("T").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`FROM trip_seats WHERE trip_id = \? AND seat_id IN \(\?,\?\)\s+ORDER BY seat_id FOR UPDATE`).
		WithArgs("T", "1", "2").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("T", "1", 0, 0, "available", nil, nil, 1, now).
			AddRow("T", "2", 0, 1, "held", "me", mine, 2, now))
	mock.ExpectExec(`INSERT INTO bookings`).
		WithArgs("b-1", "CB-0000ABCD", "me", "T", int64(200), "confirmed", "pay_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO booking_seats \(booking_id, trip_id, seat_id, pos\) VALUES \(\?, \?, \?, \?\),\(\?, \?, \?, \?\)`).
		WithArgs("b-1", "T", "1", 0, "b-1", "T", "2", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE trip_seats SET status = \?, holder_id = NULL`).
		WithArgs("booked", now, "T", "1", "2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	b, seats, err := s.ConfirmBooking(context.Background(), bookingRequest("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	assert.Equal(t, int64(200), b.TotalAmount)
	require.Len(t, seats, 2)
	for _, seat := range seats {
		assert.Equal(t, model.StatusBooked, seat.Status)
		assert.NoError(t, seat.Validate())
	}
	assert.Equal(t, uint64(3), seats[1].Version)
}

func TestConfirmBooking_ConflictRollsBackEverything(t *testing.T) {
	s, mock := newMockStore(t)
	theirs := now.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM trips`).WithArgs("T").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("T", "1", "2").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("T", "1", 0, 0, "available", nil, nil, 1, now).
			AddRow("T", "2", 0, 1, "held", "other", theirs, 2, now))
	mock.ExpectRollback()

	_, _, err := s.ConfirmBooking(context.Background(), bookingRequest("1", "2"))
	var conflict *store.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"2"}, conflict.SeatIDs)
}

func TestConfirmBooking_UnknownTrip(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM trips`).WithArgs("T").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := s.ConfirmBooking(context.Background(), bookingRequest("1"))
	assert.ErrorIs(t, err, store.ErrTripNotFound)
}

func TestBookingsForHolder(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`GROUP_CONCAT\(bs.seat_id ORDER BY bs.pos SEPARATOR ','\)`).
		WithArgs("me").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "holder_id", "trip_id", "total_amount", "status", "payment_ref", "created_at", "seats"}).
			AddRow("b-2", "CB-2", "me", "T", 100, "confirmed", nil, now, "12").
			AddRow("b-1", "CB-1", "me", "T", 300, "confirmed", "pay", now.Add(-time.Hour), "1,2,10"))

	got, err := s.BookingsForHolder(context.Background(), "me")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"12"}, got[0].SeatIDs)
	assert.Empty(t, got[0].PaymentRef)
	assert.Equal(t, []string{"1", "2", "10"}, got[1].SeatIDs)
	assert.Equal(t, "pay", got[1].PaymentRef)
}

func TestGetTrip(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, route, fare_per_seat`).WithArgs("T").
		WillReturnRows(sqlmock.NewRows([]string{"id", "route", "fare_per_seat", "total_seats", "departs_at", "arrives_at", "capacity_class"}).
			AddRow("T", "Campus - Central Station", 100, 41, now, now.Add(time.Hour), "STANDARD"))
	trip, err := s.GetTrip(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, int64(100), trip.FarePerSeat)
	assert.Equal(t, 41, trip.TotalSeats)

	mock.ExpectQuery(`SELECT id, route`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = s.GetTrip(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrTripNotFound)
}

func TestTripCreate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trips`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO trip_seats`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	require.NoError(t, s.CreateTrip(context.Background(), model.Trip{ID: "T", FarePerSeat: 100}, model.LayoutSeats("T", 5)))
}

func TestTripCreate_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trips`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'T'"})
	mock.ExpectRollback()

	err := s.CreateTrip(context.Background(), model.Trip{ID: "T"}, model.LayoutSeats("T", 5))
	assert.ErrorIs(t, err, store.ErrTripExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
