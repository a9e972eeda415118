package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// TripRepo reads and provisions trips.
type TripRepo struct {
	db *sql.DB
}

// NewTripRepo returns a TripRepo bound to db.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

const tripColumns = `id, route, fare_per_seat, total_seats, departs_at, arrives_at, capacity_class`

// GetTrip loads a trip by id.
func (r *TripRepo) GetTrip(ctx context.Context, tripID string) (model.Trip, error) {
	var t model.Trip
	err := r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, tripID).Scan(
		&t.ID, &t.Route, &t.FarePerSeat, &t.TotalSeats, &t.DepartsAt, &t.ArrivesAt, &t.CapacityClass,
	)
	if isNoRows(err) {
		return model.Trip{}, store.ErrTripNotFound
	}
	if err != nil {
		return model.Trip{}, unavailable("get trip", err)
	}
	return t, nil
}

// CreateTrip inserts a trip together with its seats in one transaction.
// The seat count is fixed from here on.  A duplicate id is ErrTripExists.
func (r *TripRepo) CreateTrip(ctx context.Context, trip model.Trip, seats []model.Seat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	committed := false
	defer rollback(tx, &committed)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trips (`+tripColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Route, trip.FarePerSeat, len(seats), trip.DepartsAt.UTC(), trip.ArrivesAt.UTC(), trip.CapacityClass,
	); err != nil {
		if isDuplicate(err) {
			return store.ErrTripExists
		}
		return unavailable("insert trip", err)
	}
	if len(seats) > 0 {
		now := time.Now().UTC()
		query := `INSERT INTO trip_seats (trip_id, seat_id, row_idx, col_idx, status, version, updated_at) VALUES `
		args := make([]interface{}, 0, len(seats)*7)
		for i, s := range seats {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?)"
			args = append(args, trip.ID, s.ID, s.Row, s.Col, string(model.StatusAvailable), uint64(1), now)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return unavailable("insert seats", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	committed = true
	return nil
}

func tripExists(ctx context.Context, q queryer, tripID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM trips WHERE id = ?`, tripID).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("trip exists", err)
	}
	return true, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
