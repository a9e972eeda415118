// Package notify carries booking confirmations over RabbitMQ so that e-mail
// delivery and the booking log live outside the request path.
package notify

import (
	"time"

	"github.com/iliyamo/college-bus-booking/internal/model"
)

// QueueName is the durable queue confirmations are published to.
const QueueName = "booking.confirmed"

// BookingConfirmedEvent is published once per confirmed booking.  It holds
// everything a mailer needs without reading the primary database.
type BookingConfirmedEvent struct {
	BookingID   string   `json:"booking_id"`
	Reference   string   `json:"reference"`
	HolderID    string   `json:"holder_id"`
	Email       string   `json:"email,omitempty"`
	TripID      string   `json:"trip_id"`
	SeatIDs     []string `json:"seats"`
	TotalAmount int64    `json:"total_amount"`
	PaymentRef  string   `json:"payment_ref,omitempty"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// NewBookingConfirmed builds the event for b.
func NewBookingConfirmed(b model.Booking, email string) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BookingID:   b.ID,
		Reference:   b.Reference,
		HolderID:    b.HolderID,
		Email:       email,
		TripID:      b.TripID,
		SeatIDs:     append([]string(nil), b.SeatIDs...),
		TotalAmount: b.TotalAmount,
		PaymentRef:  b.PaymentRef,
		ConfirmedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
