package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// ErrDisconnected is reported by a subscription whose transport closed
// before the subscriber cancelled it.
var ErrDisconnected = errors.New("feed: subscription dropped")

const (
	topicPrefix  = "trip."
	metadataKind = "kind"
	bufferSize   = 256
)

// Topic returns the topic carrying changes of a trip.
func Topic(tripID string) string { return topicPrefix + tripID }

// Publisher is implemented by anything that can broadcast change events.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Source opens subscriptions to the changes of one trip.
type Source interface {
	Subscribe(ctx context.Context, tripID string) (*Subscription, error)
}

// Feed publishes and subscribes to trip topics over a watermill transport.
type Feed struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
}

// New builds a feed over an existing watermill publisher and subscriber.
func New(pub message.Publisher, sub message.Subscriber, logger watermill.LoggerAdapter) *Feed {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Feed{pub: pub, sub: sub, logger: logger}
}

// NewInProcess returns a feed that only reaches subscribers of this process.
// Publish never waits for subscribers, so events of one call may arrive in
// any order.  Consumers reconcile seats by version.
func NewInProcess(logger watermill.LoggerAdapter) *Feed {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: bufferSize}, logger)
	return New(ch, ch, logger)
}

// NewRedis returns a feed backed by Redis streams.  The subscriber runs in
// fan-out mode (no consumer group) so every instance sees every event.
func NewRedis(rdb redis.UniversalClient, logger watermill.LoggerAdapter) (*Feed, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, logger)
	if err != nil {
		return nil, fmt.Errorf("redis feed publisher: %w", err)
	}
	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: rdb}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("redis feed subscriber: %w", err)
	}
	return New(pub, sub, logger), nil
}

// Publish sends each event to its trip topic.  It stops at the first
// transport error.
func (f *Feed) Publish(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		if !ev.valid() {
			return fmt.Errorf("feed: malformed %q event for trip %q", ev.Kind, ev.TripID)
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("feed: marshal event: %w", err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(metadataKind, string(ev.Kind))
		msg.SetContext(ctx)
		if err := f.pub.Publish(Topic(ev.TripID), msg); err != nil {
			return fmt.Errorf("feed: publish to %s: %w", Topic(ev.TripID), err)
		}
	}
	return nil
}

// Subscribe opens a subscription to the trip's topic.  The subscription
// ends when ctx is cancelled, Close is called or the transport drops.
func (f *Feed) Subscribe(ctx context.Context, tripID string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	msgs, err := f.sub.Subscribe(ctx, Topic(tripID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("feed: subscribe %s: %w", Topic(tripID), err)
	}
	s := &Subscription{
		events: make(chan Event, bufferSize),
		cancel: cancel,
	}
	go s.pump(ctx, msgs, f.logger.With(watermill.LogFields{"topic": Topic(tripID)}))
	return s, nil
}

// Close releases the underlying transport.
func (f *Feed) Close() error {
	var errs []error
	if err := f.pub.Close(); err != nil {
		errs = append(errs, err)
	}
	if any(f.sub) != any(f.pub) {
		if err := f.sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscription delivers decoded events as the transport hands them over.
// The Redis stream keeps publish order; the in-process transport does not.
// Events closes once the subscription has ended.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Events returns the channel of decoded events.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close cancels the subscription.
func (s *Subscription) Close() { s.cancel() }

// Err reports why the subscription ended: ErrDisconnected when the
// transport went away, nil when it was cancelled or is still running.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) pump(ctx context.Context, msgs <-chan *message.Message, logger watermill.LoggerAdapter) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					s.mu.Lock()
					s.err = ErrDisconnected
					s.mu.Unlock()
				}
				return
			}
			var ev Event
			err := json.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil || !ev.valid() {
				logger.Error("dropping undecodable feed message", err, watermill.LogFields{"message_uuid": msg.UUID})
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
