package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/reconciler"
	"github.com/iliyamo/college-bus-booking/internal/sweeper"
)

const heartbeatEvery = 20 * time.Second

// SeatsLoader is the store side of a live seat map.
type SeatsLoader interface {
	reconciler.Loader
	GetTrip(ctx context.Context, tripID string) (model.Trip, error)
}

// ExpirySweeper releases lapsed holds spotted in a seat map.
type ExpirySweeper interface {
	SweepSeats(ctx context.Context, seats []model.Seat) sweeper.Result
}

// EventsHandler streams a trip's seat map as Server-Sent Events.  Each
// connection owns a reconciler: a "snapshot" event is sent after every
// (re)subscription and "seat" or "booking" events for each applied change.
type EventsHandler struct {
	Store   SeatsLoader
	Source  feed.Source
	Sweeper ExpirySweeper
	Log     zerolog.Logger
	Now     func() time.Time
}

func NewEventsHandler(st SeatsLoader, src feed.Source, sw ExpirySweeper, log zerolog.Logger) *EventsHandler {
	if st == nil || src == nil {
		panic("nil dependency passed to NewEventsHandler")
	}
	return &EventsHandler{Store: st, Source: src, Sweeper: sw, Log: log, Now: time.Now}
}

// sseWriter serialises writes from the reconciler and the heartbeat.
type sseWriter struct {
	mu  sync.Mutex
	res *echo.Response
}

func (w *sseWriter) send(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

func (w *sseWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.res, ": ping\n\n"); err != nil {
		return err
	}
	w.res.Flush()
	return nil
}

// Stream handles GET /v1/trips/:id/events.
func (h *EventsHandler) Stream(c echo.Context) error {
	tripID := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	if _, err := h.Store.GetTrip(ctx, tripID); err != nil {
		return respondError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	w := &sseWriter{res: res}
	log := h.Log.With().Str("trip_id", tripID).Logger()
	rec := reconciler.New(tripID, h.Store, h.Source, log, reconciler.OnChange(func(ctx context.Context, m *reconciler.SeatMap, u reconciler.Update) {
		if err := h.push(ctx, w, m, u); err != nil {
			// The client is gone; stop the reconciler.
			cancel()
		}
	}))

	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	hb := time.NewTicker(heartbeatEvery)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			// Run must have returned before the response is handed back.
			<-done
			return nil
		case err := <-done:
			return err
		case <-hb.C:
			if err := w.ping(); err != nil {
				cancel()
			}
		}
	}
}

func (h *EventsHandler) push(ctx context.Context, w *sseWriter, m *reconciler.SeatMap, u reconciler.Update) error {
	now := h.Now()
	if u.Refreshed {
		if h.Sweeper != nil {
			// Clear lapsed holds seen in the fresh snapshot; their releases
			// arrive on the feed like any other change.
			h.Sweeper.SweepSeats(ctx, m.Raw())
		}
		return w.send("snapshot", newSeatMap(m.TripID(), m.Snapshot(now), now))
	}
	switch u.Event.Kind {
	case feed.KindSeatChanged:
		if raw, ok := m.RawSeat(u.Event.Seat.ID); ok && h.Sweeper != nil && raw.HoldExpired(now) {
			// A hold that arrives already lapsed is released like one found
			// in a snapshot.
			h.Sweeper.SweepSeats(ctx, []model.Seat{raw})
		}
		if seat, ok := m.Seat(u.Event.Seat.ID, now); ok {
			return w.send("seat", seat)
		}
	case feed.KindBookingChanged:
		return w.send("booking", u.Event.Booking)
	}
	return nil
}
