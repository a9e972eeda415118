// Package sweeper returns lapsed holds to the available state.  It runs on
// a timer against the store, as a scheduled asynq job, and opportunistically
// over a local seat map whenever the map changes.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultBatch    = 500
)

// Releaser performs the guarded corrective write for one seat.
type Releaser interface {
	ReleaseExpired(ctx context.Context, seat model.Seat, now time.Time) (model.Seat, error)
}

// Lister finds holds that lapsed by now.
type Lister interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.Seat, error)
}

// Result counts the outcome of one sweep.
type Result struct {
	Scanned  int
	Released int
	// Skipped seats changed under the sweep and were left alone.
	Skipped int
	Failed  int
}

// Sweeper releases expired holds.
type Sweeper struct {
	rel      Releaser
	list     Lister
	log      zerolog.Logger
	now      func() time.Time
	interval time.Duration
	batch    int
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(s *Sweeper) { s.now = now } }

// WithInterval sets the period of Run.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatch caps how many holds SweepOnce releases per pass.
func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

// New builds a sweeper.  list may be nil when only SweepSeats is used.
func New(rel Releaser, list Lister, log zerolog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		rel:      rel,
		list:     list,
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
		interval: DefaultInterval,
		batch:    DefaultBatch,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SweepSeats releases every seat in seats whose hold lapsed.  A seat whose
// guard no longer matches is skipped silently; other failures are logged
// and the rest of the batch still runs.
func (s *Sweeper) SweepSeats(ctx context.Context, seats []model.Seat) Result {
	now := s.now()
	var res Result
	for _, seat := range seats {
		if !seat.HoldExpired(now) {
			continue
		}
		res.Scanned++
		if ctx.Err() != nil {
			res.Failed++
			continue
		}
		_, err := s.rel.ReleaseExpired(ctx, seat, now)
		switch {
		case err == nil:
			res.Released++
		case errors.Is(err, store.ErrConflict):
			res.Skipped++
		default:
			res.Failed++
			s.log.Error().Err(err).Str("trip_id", seat.TripID).Str("seat_id", seat.ID).Msg("release expired hold")
		}
	}
	return res
}

// SweepOnce releases up to one batch of lapsed holds found in the store.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	if s.list == nil {
		return Result{}, errors.New("sweeper: no store to list expired holds from")
	}
	seats, err := s.list.ListExpiredHolds(ctx, s.now(), s.batch)
	if err != nil {
		return Result{}, fmt.Errorf("list expired holds: %w", err)
	}
	res := s.SweepSeats(ctx, seats)
	if res.Scanned > 0 {
		s.log.Info().Int("scanned", res.Scanned).Int("released", res.Released).
			Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("sweep finished")
	}
	return res, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("sweep skipped")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
