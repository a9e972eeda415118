// Package engine is the only component allowed to move a seat between
// states.  Each transition is a single guarded write against the store so
// that concurrent holders are arbitrated by the store itself; the engine
// never retries a lost race.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// DefaultHoldDuration is long enough to cover offline payment flows.
const DefaultHoldDuration = 24 * time.Hour

const notifyTimeout = 10 * time.Second

var (
	// ErrSeatTaken reports a lost race.  It matches store.ErrConflict.
	ErrSeatTaken = fmt.Errorf("seat was just taken: %w", store.ErrConflict)
	// ErrInvalidRequest reports malformed input such as empty or repeated ids.
	ErrInvalidRequest = errors.New("engine: invalid request")
)

// Notifier delivers the out-of-band booking confirmation.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, b model.Booking, email string) error
}

// Payment is the checkout metadata recorded with a booking.
type Payment struct {
	Ref   string
	Email string
}

// Engine executes hold, release and booking transitions.
type Engine struct {
	store    store.Store
	pub      feed.Publisher
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
	holdFor  time.Duration

	pending sync.WaitGroup
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithHoldDuration sets the duration used when Hold is given none.
func WithHoldDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.holdFor = d
		}
	}
}

// WithNotifier sets the booking confirmation notifier.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// New builds an engine.  pub may be nil when nobody observes changes.
func New(st store.Store, pub feed.Publisher, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		pub:     pub,
		log:     log.With().Str("component", "engine").Logger(),
		now:     time.Now,
		holdFor: DefaultHoldDuration,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// HoldDuration returns the default hold duration.
func (e *Engine) HoldDuration() time.Duration { return e.holdFor }

// Hold places a hold for holderID on an available seat, or on a seat whose
// previous hold has already expired.  A seat the caller already holds is
// returned unchanged.  A lost race yields ErrSeatTaken.
func (e *Engine) Hold(ctx context.Context, tripID, seatID, holderID string, d time.Duration) (model.Seat, error) {
	if tripID == "" || seatID == "" || holderID == "" {
		return model.Seat{}, fmt.Errorf("%w: trip, seat and holder are required", ErrInvalidRequest)
	}
	if d <= 0 {
		d = e.holdFor
	}
	now := e.now()
	change := store.SeatChange{Status: model.StatusHeld, Holder: holderID, HoldExpiresAt: now.Add(d)}

	seat, err := e.store.UpdateSeat(ctx, tripID, seatID, store.Expect{Status: model.StatusAvailable}, change)
	if err == nil {
		e.publish(ctx, feed.SeatChanged(seat, now))
		return seat, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return model.Seat{}, fmt.Errorf("hold seat %s: %w", seatID, err)
	}

	cur, err := e.store.GetSeat(ctx, tripID, seatID)
	if err != nil {
		return model.Seat{}, fmt.Errorf("hold seat %s: %w", seatID, err)
	}
	switch {
	case cur.HeldBy(holderID, now):
		return cur, nil
	case cur.HoldExpired(now):
		seat, err = e.store.UpdateSeat(ctx, tripID, seatID,
			store.Expect{Status: model.StatusHeld, Version: cur.Version, ExpiredBy: now}, change)
		if err == nil {
			e.publish(ctx, feed.SeatChanged(seat, now))
			return seat, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Seat{}, fmt.Errorf("hold seat %s: %w", seatID, err)
		}
	}
	return model.Seat{}, ErrSeatTaken
}

// Release clears holderID's hold on a seat.  A seat that is no longer held
// by holderID is left alone and the call still succeeds.
func (e *Engine) Release(ctx context.Context, tripID, seatID, holderID string) error {
	if tripID == "" || seatID == "" || holderID == "" {
		return fmt.Errorf("%w: trip, seat and holder are required", ErrInvalidRequest)
	}
	seat, err := e.store.UpdateSeat(ctx, tripID, seatID,
		store.Expect{Status: model.StatusHeld, Holder: holderID}, store.Available())
	switch {
	case err == nil:
		e.publish(ctx, feed.SeatChanged(seat, e.now()))
		return nil
	case errors.Is(err, store.ErrConflict):
		return nil
	default:
		return fmt.Errorf("release seat %s: %w", seatID, err)
	}
}

// ReleaseExpired is the corrective write of the sweeper: it frees seat only
// if it is still held by the same holder under a hold that lapsed by now.
// It returns store.ErrConflict when the row moved on in the meantime.
func (e *Engine) ReleaseExpired(ctx context.Context, seat model.Seat, now time.Time) (model.Seat, error) {
	if !seat.HoldExpired(now) {
		return model.Seat{}, store.ErrConflict
	}
	next, err := e.store.UpdateSeat(ctx, seat.TripID, seat.ID,
		store.Expect{Status: model.StatusHeld, Holder: seat.HolderID, ExpiredBy: now}, store.Available())
	if err != nil {
		return model.Seat{}, err
	}
	e.publish(ctx, feed.SeatChanged(next, now))
	return next, nil
}

// ConfirmBooking books every seat for holderID at farePerSeat.  Each seat
// must be available, held by holderID or held under an expired hold.  Either
// all seats are booked together with the booking row, or nothing is.
func (e *Engine) ConfirmBooking(ctx context.Context, tripID string, seatIDs []string, holderID string, farePerSeat int64) (model.Booking, error) {
	return e.confirm(ctx, tripID, seatIDs, holderID, farePerSeat, Payment{})
}

// BulkConfirmBooking is the checkout path: the fare comes from the trip,
// payment metadata is stored with the booking and a confirmation is sent in
// the background once the booking is committed.
func (e *Engine) BulkConfirmBooking(ctx context.Context, tripID string, seatIDs []string, holderID string, payment Payment) (model.Booking, error) {
	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("checkout trip %s: %w", tripID, err)
	}
	b, err := e.confirm(ctx, tripID, seatIDs, holderID, trip.FarePerSeat, payment)
	if err != nil {
		return model.Booking{}, err
	}
	e.notify(b, payment.Email)
	return b, nil
}

func (e *Engine) confirm(ctx context.Context, tripID string, seatIDs []string, holderID string, fare int64, payment Payment) (model.Booking, error) {
	if err := validateSeatIDs(tripID, seatIDs, holderID); err != nil {
		return model.Booking{}, err
	}
	if fare < 0 {
		return model.Booking{}, fmt.Errorf("%w: negative fare", ErrInvalidRequest)
	}
	now := e.now()
	id := uuid.New()
	req := store.BookingRequest{
		BookingID:   id.String(),
		Reference:   reference(id),
		TripID:      tripID,
		HolderID:    holderID,
		SeatIDs:     append([]string(nil), seatIDs...),
		TotalAmount: int64(len(seatIDs)) * fare,
		PaymentRef:  payment.Ref,
		Now:         now,
	}
	b, seats, err := e.store.ConfirmBooking(ctx, req)
	if err != nil {
		var conflict *store.SeatConflictError
		if errors.As(err, &conflict) {
			return model.Booking{}, fmt.Errorf("%w: %w", ErrSeatTaken, conflict)
		}
		return model.Booking{}, fmt.Errorf("confirm booking on trip %s: %w", tripID, err)
	}

	events := make([]feed.Event, 0, len(seats)+1)
	for _, s := range seats {
		events = append(events, feed.SeatChanged(s, now))
	}
	events = append(events, feed.BookingChanged(b, now))
	e.publish(ctx, events...)

	e.log.Info().Str("booking_id", b.ID).Str("trip_id", tripID).Strs("seats", b.SeatIDs).
		Int64("total", b.TotalAmount).Msg("booking confirmed")
	return b, nil
}

func validateSeatIDs(tripID string, seatIDs []string, holderID string) error {
	if tripID == "" || holderID == "" {
		return fmt.Errorf("%w: trip and holder are required", ErrInvalidRequest)
	}
	if len(seatIDs) == 0 {
		return fmt.Errorf("%w: no seats", ErrInvalidRequest)
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == "" {
			return fmt.Errorf("%w: empty seat id", ErrInvalidRequest)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: seat %s listed twice", ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// reference derives the short ticket code from the booking id.
func reference(id uuid.UUID) string {
	return "CB-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func (e *Engine) publish(ctx context.Context, events ...feed.Event) {
	if e.pub == nil || len(events) == 0 {
		return
	}
	if err := e.pub.Publish(ctx, events...); err != nil {
		e.log.Error().Err(err).Str("trip_id", events[0].TripID).Msg("publish change events")
	}
}

// notify runs the confirmation in its own goroutine with its own deadline
// so that a slow or failing broker never affects the booking.
func (e *Engine) notify(b model.Booking, email string) {
	if e.notifier == nil {
		return
	}
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.notifier.NotifyBookingConfirmed(ctx, b, email); err != nil {
			e.log.Warn().Err(err).Str("booking_id", b.ID).Msg("booking confirmation not sent")
		}
	}()
}

// Wait blocks until background notifications have finished.
func (e *Engine) Wait() { e.pending.Wait() }
