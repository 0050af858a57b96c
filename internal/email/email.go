package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/flightdesk/internal/kafka"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"go.uber.org/zap"
)

// Sender renders booking notifications. Delivery is a log line; no mail
// provider is wired.
type Sender struct {
	from   string
	logger *zap.Logger
}

func NewSender(from string, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{from: from, logger: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.Email == "" {
		return fmt.Errorf("booking %d: no recipient", event.BookingID)
	}
	logger.FromContext(ctx, s.logger).Info("email sent",
		zap.String("from", s.from),
		zap.String("to", event.Email),
		zap.String("subject", Subject(event)),
		zap.String("event_id", event.EventID),
		zap.Int64("booking_id", event.BookingID))
	return nil
}

func Subject(event kafka.BookingEvent) string {
	switch event.Type {
	case kafka.EventBookingCreated:
		return fmt.Sprintf("Booking #%d confirmed: %d seat(s)", event.BookingID, event.Seats)
	case kafka.EventBookingCancelled:
		return fmt.Sprintf("Booking #%d cancelled", event.BookingID)
	case kafka.EventBookingUpdated:
		return fmt.Sprintf("Booking #%d updated: %d seat(s)", event.BookingID, event.Seats)
	case kafka.EventBookingStatusChanged:
		return fmt.Sprintf("Booking #%d is now %s", event.BookingID, event.Status)
	default:
		return fmt.Sprintf("Booking #%d", event.BookingID)
	}
}
