package kafka

import (
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingUpdated       = "booking_updated"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingStatusChanged = "booking_status_changed"
)

type BookingEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	FlightID   int64     `json:"flight_id"`
	Seats      int       `json:"seats"`
	Status     string    `json:"status"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBookingEvent snapshots details into an event with a fresh id.
func NewBookingEvent(eventType string, details *domain.BookingDetails) BookingEvent {
	event := BookingEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		BookingID:  details.ID,
		UserID:     details.UserID,
		FlightID:   details.FlightID,
		Seats:      details.Seats,
		Status:     string(details.Status),
		OccurredAt: time.Now().UTC(),
	}
	if details.User != nil {
		event.Email = details.User.Email
		event.Name = details.User.Name
	}
	return event
}
