package domain

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ParseBookingStatus accepts any casing of the three known statuses.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch status := BookingStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return status, nil
	default:
		return "", Invalid(fmt.Sprintf("unknown booking status %q", s))
	}
}

func (s BookingStatus) Valid() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed || s == BookingStatusCancelled
}

// Active bookings hold seats on their flight.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CanTransition is the booking state machine:
//
//	pending   -> confirmed | cancelled
//	confirmed -> cancelled
//	cancelled -> (terminal)
//
// Staying in the same status is allowed and treated as a no-op by callers,
// except that nothing leaves cancelled. confirmed -> pending is an admin
// correction and is allowed as well, it has no seat impact.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingStatusPending:
		return to == BookingStatusPending || to == BookingStatusConfirmed || to == BookingStatusCancelled
	case BookingStatusConfirmed:
		return to == BookingStatusConfirmed || to == BookingStatusPending || to == BookingStatusCancelled
	case BookingStatusCancelled:
		return to == BookingStatusCancelled
	default:
		return false
	}
}

type Booking struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	FlightID  int64         `json:"flight_id"`
	Seats     int           `json:"seats"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// HeldSeats is what the booking currently contributes to its flight's deduction.
func (b Booking) HeldSeats() int {
	if b.Status.Active() {
		return b.Seats
	}
	return 0
}

// BookingDetails is a booking joined with the flight and user it references.
type BookingDetails struct {
	Booking
	Flight *Flight      `json:"flight,omitempty"`
	User   *UserSummary `json:"user,omitempty"`
}

// Requester identifies who is acting on a booking.
type Requester struct {
	UserID int64
	Role   Role
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// CanAccess reports whether the requester owns the booking or is an admin.
func (r Requester) CanAccess(b *Booking) bool {
	return r.IsAdmin() || (b != nil && b.UserID == r.UserID)
}

// FlightDrift is one row of the inventory audit: a non-zero Drift means
// available seats and active bookings disagree.
type FlightDrift struct {
	FlightID       int64
	TotalSeats     int
	AvailableSeats int
	HeldSeats      int
	Drift          int
}
