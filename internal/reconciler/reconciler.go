package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

const (
	defaultMinBackoff = 250 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Loader reads the authoritative seat snapshot of a trip.
type Loader interface {
	ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error)
}

// Update describes what changed in the map.  Refreshed is set after a full
// snapshot was merged; otherwise Event holds the applied event.
type Update struct {
	Refreshed bool
	Event     feed.Event
}

// Reconciler subscribes a SeatMap to the change feed of its trip.
type Reconciler struct {
	seats    *SeatMap
	loader   Loader
	source   feed.Source
	log      zerolog.Logger
	onChange func(context.Context, *SeatMap, Update)

	minBackoff time.Duration
	maxBackoff time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// OnChange registers fn to run after every change to the map.  fn runs on
// the reconciler's goroutine and must not block for long.
func OnChange(fn func(context.Context, *SeatMap, Update)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// WithBackoff bounds the wait between resubscription attempts.
func WithBackoff(min, max time.Duration) Option {
	return func(r *Reconciler) {
		if min > 0 {
			r.minBackoff = min
		}
		if max >= r.minBackoff {
			r.maxBackoff = max
		}
	}
}

// New builds a reconciler for tripID.
func New(tripID string, loader Loader, source feed.Source, log zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		seats:      NewSeatMap(tripID),
		loader:     loader,
		source:     source,
		log:        log.With().Str("component", "reconciler").Str("trip_id", tripID).Logger(),
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		ready:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Seats returns the map kept up to date by Run.
func (r *Reconciler) Seats() *SeatMap { return r.seats }

// Ready is closed once the first snapshot has been merged.
func (r *Reconciler) Ready() <-chan struct{} { return r.ready }

// Run keeps the map synchronised until ctx is cancelled.  Every (re)connect
// subscribes first and then reads a full snapshot, so no change made in
// between is lost.  A dropped subscription is reopened with exponential
// backoff and followed by another full refresh.  The backoff starts over
// only after a session that stayed up for at least the longest wait.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := r.minBackoff
	for {
		started := time.Now()
		err := r.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil && time.Since(started) >= r.maxBackoff {
			backoff = r.minBackoff
		}
		r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("change feed lost, resubscribing")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// session runs one subscription.  It returns nil when a working
// subscription later dropped, and an error when it could not be set up.
func (r *Reconciler) session(ctx context.Context) error {
	sub, err := r.source.Subscribe(ctx, r.seats.TripID())
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := r.refresh(ctx); err != nil {
		return err
	}
	for ev := range sub.Events() {
		if r.seats.Apply(ev) {
			r.changed(ctx, Update{Event: ev})
		}
	}
	if err := sub.Err(); err != nil {
		r.log.Debug().Err(err).Msg("subscription ended")
	}
	return nil
}

func (r *Reconciler) refresh(ctx context.Context) error {
	seats, err := r.loader.ReadSeats(ctx, r.seats.TripID())
	if err != nil {
		return fmt.Errorf("refresh seats: %w", err)
	}
	r.seats.Replace(seats)
	r.readyOnce.Do(func() { close(r.ready) })
	r.changed(ctx, Update{Refreshed: true})
	return nil
}

func (r *Reconciler) changed(ctx context.Context, u Update) {
	if r.onChange != nil {
		r.onChange(ctx, r.seats, u)
	}
}
