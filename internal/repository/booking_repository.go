package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// BookingRepo writes bookings and the seat transitions they imply.
type BookingRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db, now: time.Now} }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ConfirmBooking locks the requested seats, checks that every one of them
// is bookable by the holder, inserts the booking and marks the seats booked,
// all in one transaction.  Seats are locked in seat_id order so that two
// overlapping bookings cannot deadlock.
func (r *BookingRepo) ConfirmBooking(ctx context.Context, req store.BookingRequest) (model.Booking, []model.Seat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, nil, unavailable("begin", err)
	}
	committed := false
	defer rollback(tx, &committed)

	ok, err := tripExists(ctx, tx, req.TripID)
	if err != nil {
		return model.Booking{}, nil, err
	}
	if !ok {
		return model.Booking{}, nil, store.ErrTripNotFound
	}

	args := make([]interface{}, 0, len(req.SeatIDs)+1)
	args = append(args, req.TripID)
	for _, id := range req.SeatIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM trip_seats WHERE trip_id = ? AND seat_id IN (`+placeholders(len(req.SeatIDs))+`)
		 ORDER BY seat_id FOR UPDATE`, args...)
	if err != nil {
		return model.Booking{}, nil, unavailable("lock seats", err)
	}
	locked, err := scanSeats(rows)
	if err != nil {
		return model.Booking{}, nil, unavailable("lock seats", err)
	}
	byID := make(map[string]model.Seat, len(locked))
	for _, s := range locked {
		byID[s.ID] = s
	}

	var blocked []string
	for _, id := range req.SeatIDs {
		s, found := byID[id]
		if !found {
			return model.Booking{}, nil, store.ErrSeatNotFound
		}
		if !store.Bookable(s, req.HolderID, req.Now) {
			blocked = append(blocked, id)
		}
	}
	if len(blocked) > 0 {
		return model.Booking{}, nil, &store.SeatConflictError{SeatIDs: blocked}
	}

	at := r.now().UTC()
	var paymentRef sql.NullString
	if req.PaymentRef != "" {
		paymentRef = sql.NullString{String: req.PaymentRef, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (id, reference, holder_id, trip_id, total_amount, status, payment_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.BookingID, req.Reference, req.HolderID, req.TripID, req.TotalAmount,
		string(model.BookingConfirmed), paymentRef, at,
	); err != nil {
		return model.Booking{}, nil, unavailable("insert booking", err)
	}

	query := `INSERT INTO booking_seats (booking_id, trip_id, seat_id, pos) VALUES `
	seatArgs := make([]interface{}, 0, len(req.SeatIDs)*4)
	for i, id := range req.SeatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		seatArgs = append(seatArgs, req.BookingID, req.TripID, id, i)
	}
	if _, err := tx.ExecContext(ctx, query, seatArgs...); err != nil {
		return model.Booking{}, nil, unavailable("insert booking seats", err)
	}

	updArgs := append([]interface{}{string(model.StatusBooked), at}, args...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE trip_seats SET status = ?, holder_id = NULL, hold_expires_at = NULL, version = version + 1, updated_at = ?
		 WHERE trip_id = ? AND seat_id IN (`+placeholders(len(req.SeatIDs))+`)`, updArgs...); err != nil {
		return model.Booking{}, nil, unavailable("book seats", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Booking{}, nil, unavailable("commit", err)
	}
	committed = true

	seats := make([]model.Seat, 0, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		seats = append(seats, store.SeatChange{Status: model.StatusBooked}.Apply(byID[id], at))
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
		CreatedAt:   at,
	}
	return b, seats, nil
}

// BookingsForHolder lists a holder's bookings, newest first.
func (r *BookingRepo) BookingsForHolder(ctx context.Context, holderID string) ([]model.Booking, error) {
	const q = `SELECT b.id, b.reference, b.holder_id, b.trip_id, b.total_amount, b.status, b.payment_ref, b.created_at,
	                  GROUP_CONCAT(bs.seat_id ORDER BY bs.pos SEPARATOR ',')
	           FROM bookings b
	           JOIN booking_seats bs ON bs.booking_id = b.id
	           WHERE b.holder_id = ?
	           GROUP BY b.id
	           ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, holderID)
	if err != nil {
		return nil, unavailable("list bookings", err)
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		var (
			b          model.Booking
			status     string
			paymentRef sql.NullString
			seatIDs    string
		)
		if err := rows.Scan(&b.ID, &b.Reference, &b.HolderID, &b.TripID, &b.TotalAmount, &status, &paymentRef, &b.CreatedAt, &seatIDs); err != nil {
			return nil, unavailable("scan booking", err)
		}
		b.Status = model.BookingStatus(status)
		b.PaymentRef = paymentRef.String
		b.CreatedAt = b.CreatedAt.UTC()
		if seatIDs != "" {
			b.SeatIDs = strings.Split(seatIDs, ",")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list bookings", err)
	}
	return out, nil
}
