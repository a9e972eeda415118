package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// SeatRepo reads trip_seats and applies guarded updates to it.  Every write
// bumps the row version in the same statement that checks the guard, so
// MySQL's row lock arbitrates concurrent writers.
type SeatRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSeatRepo returns a SeatRepo bound to db.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db, now: time.Now} }

const seatColumns = `trip_id, seat_id, row_idx, col_idx, status, holder_id, hold_expires_at, version, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(row scanner) (model.Seat, error) {
	var (
		s       model.Seat
		status  string
		holder  sql.NullString
		expires sql.NullTime
	)
	if err := row.Scan(&s.TripID, &s.ID, &s.Row, &s.Col, &status, &holder, &expires, &s.Version, &s.UpdatedAt); err != nil {
		return model.Seat{}, err
	}
	s.Status = model.SeatStatus(status)
	if holder.Valid {
		s.HolderID = holder.String
	}
	if expires.Valid {
		t := expires.Time.UTC()
		s.HoldExpiresAt = &t
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func scanSeats(rows *sql.Rows) ([]model.Seat, error) {
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadSeats returns every seat of a trip in layout order.
func (r *SeatRepo) ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM trip_seats WHERE trip_id = ? ORDER BY row_idx, col_idx`, tripID)
	if err != nil {
		return nil, unavailable("read seats", err)
	}
	seats, err := scanSeats(rows)
	if err != nil {
		return nil, unavailable("read seats", err)
	}
	if len(seats) == 0 {
		ok, err := tripExists(ctx, r.db, tripID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.ErrTripNotFound
		}
	}
	return seats, nil
}

// GetSeat returns one seat.
func (r *SeatRepo) GetSeat(ctx context.Context, tripID, seatID string) (model.Seat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx,
		`SELECT `+seatColumns+` FROM trip_seats WHERE trip_id = ? AND seat_id = ?`, tripID, seatID))
	if isNoRows(err) {
		return model.Seat{}, store.ErrSeatNotFound
	}
	if err != nil {
		return model.Seat{}, unavailable("get seat", err)
	}
	return s, nil
}

// guardClause renders expect as a WHERE fragment over trip_seats.
func guardClause(expect store.Expect) (string, []interface{}) {
	clauses := []string{"status = ?"}
	args := []interface{}{string(expect.Status)}
	if expect.Holder != "" {
		clauses = append(clauses, "holder_id = ?")
		args = append(args, expect.Holder)
	}
	if expect.Version != 0 {
		clauses = append(clauses, "version = ?")
		args = append(args, expect.Version)
	}
	if !expect.ExpiredBy.IsZero() {
		clauses = append(clauses, "hold_expires_at <= ?")
		args = append(args, expect.ExpiredBy.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

// UpdateSeat writes change only if the row still matches expect.  The
// update and the read-back share a transaction so the returned row is
// exactly the one written.
func (r *SeatRepo) UpdateSeat(ctx context.Context, tripID, seatID string, expect store.Expect, change store.SeatChange) (model.Seat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Seat{}, unavailable("begin", err)
	}
	committed := false
	defer rollback(tx, &committed)

	var holder sql.NullString
	var expires sql.NullTime
	if change.Status == model.StatusHeld {
		holder = sql.NullString{String: change.Holder, Valid: true}
		expires = sql.NullTime{Time: change.HoldExpiresAt.UTC(), Valid: true}
	}
	guard, guardArgs := guardClause(expect)
	args := append([]interface{}{string(change.Status), holder, expires, r.now().UTC(), tripID, seatID}, guardArgs...)
	res, err := tx.ExecContext(ctx,
		`UPDATE trip_seats SET status = ?, holder_id = ?, hold_expires_at = ?, version = version + 1, updated_at = ?
		 WHERE trip_id = ? AND seat_id = ? AND `+guard, args...)
	if err != nil {
		return model.Seat{}, unavailable("update seat", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Seat{}, unavailable("update seat", err)
	}

	seat, err := scanSeat(tx.QueryRowContext(ctx,
		`SELECT `+seatColumns+` FROM trip_seats WHERE trip_id = ? AND seat_id = ?`, tripID, seatID))
	if isNoRows(err) {
		return model.Seat{}, store.ErrSeatNotFound
	}
	if err != nil {
		return model.Seat{}, unavailable("read back seat", err)
	}
	if n == 0 {
		return model.Seat{}, store.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return model.Seat{}, unavailable("commit", err)
	}
	committed = true
	return seat, nil
}

// ListExpiredHolds returns held seats whose expiry is at or before now,
// oldest first.  limit <= 0 means no limit.
func (r *SeatRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM trip_seats WHERE status = ? AND hold_expires_at <= ? ORDER BY hold_expires_at`
	args := []interface{}{string(model.StatusHeld), now.UTC()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list expired holds", err)
	}
	seats, err := scanSeats(rows)
	if err != nil {
		return nil, unavailable("list expired holds", err)
	}
	return seats, nil
}
