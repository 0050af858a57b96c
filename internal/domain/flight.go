package domain

import (
	"fmt"
	"strings"
	"time"
)

type Flight struct {
	ID             int64     `json:"id"`
	FlightNumber   string    `json:"flight_number"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	DepartureTime  time.Time `json:"departure_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	PriceCents     int64     `json:"price_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeFlightNumber trims and upper-cases a flight number so "su 1234 " and "SU 1234" collide.
func NormalizeFlightNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// Validate checks the fields an admin supplies when creating or editing a flight.
func (f Flight) Validate() error {
	switch {
	case f.FlightNumber == "":
		return Invalid("flight number is required")
	case f.Origin == "" || f.Destination == "":
		return Invalid("origin and destination are required")
	case f.DepartureTime.IsZero() || f.ArrivalTime.IsZero():
		return Invalid("departure and arrival time are required")
	case !f.ArrivalTime.After(f.DepartureTime):
		return Invalid("arrival time must be after departure time")
	case f.TotalSeats < 0:
		return Invalid("total seats must not be negative")
	case f.PriceCents < 0:
		return Invalid("price must not be negative")
	}
	return nil
}

// ValidateSeatDelta checks that moving AvailableSeats by delta keeps it
// within [0, TotalSeats].
func (f Flight) ValidateSeatDelta(delta int) error {
	next := f.AvailableSeats + delta
	if next < 0 {
		return fmt.Errorf("%w: %d requested, %d available", ErrInsufficientInventory, -delta, f.AvailableSeats)
	}
	if next > f.TotalSeats {
		return fmt.Errorf("%w: flight %d would exceed its %d seats", ErrInvalidState, f.ID, f.TotalSeats)
	}
	return nil
}
