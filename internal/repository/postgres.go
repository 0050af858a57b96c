package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const flightColumns = `id, flight_number, origin, destination, departure_time, arrival_time, total_seats, available_seats, price_cents, created_at, updated_at`

const bookingColumns = `id, user_id, flight_id, seats, status, created_at, updated_at`

// FlightFilter narrows a flight search. Zero fields match everything.
type FlightFilter struct {
	Origin      string
	Destination string
	// Date selects flights departing on that UTC calendar day.
	Date time.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (domain.Flight, error) {
	var f domain.Flight
	err := row.Scan(&f.ID, &f.FlightNumber, &f.Origin, &f.Destination, &f.DepartureTime, &f.ArrivalTime, &f.TotalSeats, &f.AvailableSeats, &f.PriceCents, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func scanBooking(row rowScanner) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.FlightID, &b.Seats, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// mapPGError turns driver errors into domain errors the services understand.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.ConstraintName)
		case "23503", "23514": // foreign_key_violation, check_violation
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, pgErr.Message)
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		}
	}
	return err
}
