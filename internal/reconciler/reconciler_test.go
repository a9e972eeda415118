package reconciler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/model"
	"github.com/iliyamo/college-bus-booking/internal/store"
)

// countingLoader counts full refreshes.
type countingLoader struct {
	store.SeatStore
	reads int32
}

func (l *countingLoader) ReadSeats(ctx context.Context, tripID string) ([]model.Seat, error) {
	atomic.AddInt32(&l.reads, 1)
	return l.SeatStore.ReadSeats(ctx, tripID)
}

// droppableSubscriber hands out a fresh channel per Subscribe call so the
// test can cut a connection by closing it.
type droppableSubscriber struct {
	mu    sync.Mutex
	chans []chan *message.Message
	subs  chan chan *message.Message
}

func newDroppableSubscriber() *droppableSubscriber {
	return &droppableSubscriber{subs: make(chan chan *message.Message, 8)}
}

func (d *droppableSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message, 8)
	d.mu.Lock()
	d.chans = append(d.chans, ch)
	d.mu.Unlock()
	d.subs <- ch
	return ch, nil
}

func (d *droppableSubscriber) Close() error { return nil }

// flappingSubscriber accepts every subscription and drops it at once.
type flappingSubscriber struct {
	calls int32
}

func (f *flappingSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	atomic.AddInt32(&f.calls, 1)
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (f *flappingSubscriber) Close() error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(string, ...*message.Message) error { return nil }
func (nopPublisher) Close() error                             { return nil }

func encode(t *testing.T, ev feed.Event) *message.Message {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), payload)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestReconciler_ResubscribesAndRefreshesAfterDrop(t *testing.T) {
	mem := store.NewMemory()
	mem.AddTrip(model.Trip{ID: "T", FarePerSeat: 100, TotalSeats: 5}, model.LayoutSeats("T", 5))
	loader := &countingLoader{SeatStore: mem}
	subs := newDroppableSubscriber()
	src := feed.New(nopPublisher{}, subs, nil)

	var refreshes, events int32
	r := New("T", loader, src, zerolog.Nop(),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		OnChange(func(_ context.Context, _ *SeatMap, u Update) {
			if u.Refreshed {
				atomic.AddInt32(&refreshes, 1)
			} else {
				atomic.AddInt32(&events, 1)
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	first := <-subs.subs
	<-r.Ready()
	assert.Equal(t, 5, r.Seats().Len())

	exp := time.Now().Add(time.Hour)
	first <- encode(t, feed.SeatChanged(model.Seat{ID: "1", TripID: "T", Status: model.StatusHeld, HolderID: "a", HoldExpiresAt: &exp, Version: 2}, time.Now()))
	waitFor(t, func() bool { return atomic.LoadInt32(&events) == 1 })

	// A write that the dropped connection never delivers.
	_, err := mem.UpdateSeat(context.Background(), "T", "2", store.Expect{Status: model.StatusAvailable}, store.SeatChange{Status: model.StatusBooked})
	require.NoError(t, err)
	close(first)

	<-subs.subs
	waitFor(t, func() bool { return atomic.LoadInt32(&loader.reads) == 2 })
	waitFor(t, func() bool {
		s, _ := r.Seats().Seat("2", time.Now())
		return s.Status == model.StatusBooked
	})
	held, _ := r.Seats().Seat("1", time.Now())
	assert.Equal(t, "a", held.HolderID, "seat learnt from the feed survives the refresh")
	waitFor(t, func() bool { return atomic.LoadInt32(&refreshes) == 2 })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestReconciler_FollowsEngineWrites(t *testing.T) {
	mem := store.NewMemory()
	mem.AddTrip(model.Trip{ID: "T", FarePerSeat: 100, TotalSeats: 5}, model.LayoutSeats("T", 5))
	f := feed.NewInProcess(nil)
	defer f.Close()
	eng := engine.New(mem, f, zerolog.Nop())

	r := New("T", mem, f, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	<-r.Ready()

	_, err := eng.Hold(ctx, "T", "3", "a", time.Hour)
	require.NoError(t, err)
	_, err = eng.ConfirmBooking(ctx, "T", []string{"4"}, "b", 100)
	require.NoError(t, err)

	waitFor(t, func() bool {
		s3, _ := r.Seats().Seat("3", time.Now())
		s4, _ := r.Seats().Seat("4", time.Now())
		return s3.Status == model.StatusHeld && s4.Status == model.StatusBooked
	})
	waitFor(t, func() bool {
		h, ok := r.Seats().HolderOf("4")
		return ok && h == "b"
	})
}

func TestReconciler_BacksOffWhenSubscriptionsDropAtOnce(t *testing.T) {
	mem := store.NewMemory()
	mem.AddTrip(model.Trip{ID: "T", FarePerSeat: 100, TotalSeats: 5}, model.LayoutSeats("T", 5))
	loader := &countingLoader{SeatStore: mem}
	subs := &flappingSubscriber{}
	r := New("T", loader, feed.New(nopPublisher{}, subs, nil), zerolog.Nop(),
		WithBackoff(10*time.Millisecond, 80*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Waits of 10, 20, 40, 80 and 80ms allow about six attempts; resetting
	// to the shortest wait after each drop would allow around thirty.
	time.Sleep(300 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	calls := atomic.LoadInt32(&subs.calls)
	assert.GreaterOrEqual(t, calls, int32(2), "dropped subscriptions are reopened")
	assert.LessOrEqual(t, calls, int32(10))
	assert.LessOrEqual(t, atomic.LoadInt32(&loader.reads), calls)
}
