package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/model"
)

var _ engine.Notifier = (*Publisher)(nil)

// Publisher sends BookingConfirmedEvents to QueueName.  A connection is
// dialled per message; confirmations are rare compared to seat traffic.
// Errors are logged and returned, the engine never lets them fail a
// booking.
type Publisher struct {
	url string
	log zerolog.Logger
}

func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, log: log.With().Str("component", "notify").Logger()}
}

// NotifyBookingConfirmed publishes a persistent message for b.
func (p *Publisher) NotifyBookingConfirmed(ctx context.Context, b model.Booking, email string) error {
	body, err := json.Marshal(NewBookingConfirmed(b, email))
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn().Err(err).Str("booking_id", b.ID).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch); err != nil {
		p.log.Warn().Err(err).Msg("rabbitmq queue declare failed")
		return err
	}

	err = ch.PublishWithContext(ctx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    b.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("booking_id", b.ID).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

// declare makes sure the durable queue exists; it is idempotent.
func declare(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(QueueName, true, false, false, false, nil)
}
