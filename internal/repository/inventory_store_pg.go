package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryStore is the only writer of available_seats and booking rows.
type InventoryStore interface {
	// WithFlightLock runs fn while holding an exclusive lock on the flight.
	// Everything fn writes through the InventoryTx commits together when fn
	// returns nil and is discarded otherwise. A flight that does not exist
	// yields domain.ErrNotFound; a lock that cannot be taken in time yields
	// domain.ErrConflict.
	WithFlightLock(ctx context.Context, flightID int64, fn func(tx InventoryTx) error) error
	// Audit returns the flights whose seat counter disagrees with their
	// active bookings.
	Audit(ctx context.Context) ([]domain.FlightDrift, error)
}

// InventoryTx is valid only inside WithFlightLock.
type InventoryTx interface {
	Flight() domain.Flight
	// AdjustAvailable adds delta to the locked flight's available seats.
	// It fails with domain.ErrInsufficientInventory rather than go below zero.
	AdjustAvailable(ctx context.Context, delta int) (int, error)
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	BookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	SaveBooking(ctx context.Context, booking *domain.Booking) error
}

// txBeginner is the part of *pgxpool.Pool the inventory store uses.
type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PGInventoryStore struct {
	db          txBeginner
	lockTimeout time.Duration
}

func NewInventoryStore(db *pgxpool.Pool, lockTimeout time.Duration) InventoryStore {
	return &PGInventoryStore{db: db, lockTimeout: lockTimeout}
}

func (s *PGInventoryStore) WithFlightLock(ctx context.Context, flightID int64, fn func(tx InventoryTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPGError(err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		// SET does not take bind parameters; the value is an integer we own.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
			return mapPGError(err)
		}
	}

	flight, err := scanFlight(tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1 FOR UPDATE`, flightID))
	if err != nil {
		return mapPGError(err)
	}

	if err := fn(&pgInventoryTx{tx: tx, flight: flight}); err != nil {
		return err
	}
	return mapPGError(tx.Commit(ctx))
}

func (s *PGInventoryStore) Audit(ctx context.Context) ([]domain.FlightDrift, error) {
	rows, err := s.db.Query(ctx, `SELECT f.id, f.total_seats, f.available_seats,
			COALESCE(SUM(b.seats) FILTER (WHERE b.status IN ($1, $2)), 0)::int AS held
		FROM flights f
		LEFT JOIN bookings b ON b.flight_id = f.id
		GROUP BY f.id
		HAVING f.total_seats - f.available_seats <> COALESCE(SUM(b.seats) FILTER (WHERE b.status IN ($1, $2)), 0)
		ORDER BY f.id`, domain.BookingStatusPending, domain.BookingStatusConfirmed)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	drifts := make([]domain.FlightDrift, 0)
	for rows.Next() {
		var d domain.FlightDrift
		if err := rows.Scan(&d.FlightID, &d.TotalSeats, &d.AvailableSeats, &d.HeldSeats); err != nil {
			return nil, err
		}
		d.Drift = d.TotalSeats - d.AvailableSeats - d.HeldSeats
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

type pgInventoryTx struct {
	tx     pgx.Tx
	flight domain.Flight
}

func (t *pgInventoryTx) Flight() domain.Flight {
	return t.flight
}

func (t *pgInventoryTx) AdjustAvailable(ctx context.Context, delta int) (int, error) {
	if err := t.flight.ValidateSeatDelta(delta); err != nil {
		return t.flight.AvailableSeats, err
	}

	var available int
	err := t.tx.QueryRow(ctx, `UPDATE flights
		SET available_seats = available_seats + $2, updated_at = now()
		WHERE id = $1 AND available_seats + $2 BETWEEN 0 AND total_seats
		RETURNING available_seats`, t.flight.ID, delta).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t.flight.AvailableSeats, domain.ErrInsufficientInventory
		}
		return t.flight.AvailableSeats, mapPGError(err)
	}
	t.flight.AvailableSeats = available
	return available, nil
}

func (t *pgInventoryTx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	row := t.tx.QueryRow(ctx, `INSERT INTO bookings (user_id, flight_id, seats, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+bookingColumns, booking.UserID, t.flight.ID, booking.Seats, booking.Status)
	created, err := scanBooking(row)
	if err != nil {
		return mapPGError(err)
	}
	*booking = created
	return nil
}

func (t *pgInventoryTx) BookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapPGError(err)
	}
	return &b, nil
}

func (t *pgInventoryTx) SaveBooking(ctx context.Context, booking *domain.Booking) error {
	row := t.tx.QueryRow(ctx, `UPDATE bookings SET seats=$2, status=$3, updated_at=now()
		WHERE id=$1
		RETURNING `+bookingColumns, booking.ID, booking.Seats, booking.Status)
	saved, err := scanBooking(row)
	if err != nil {
		return mapPGError(err)
	}
	*booking = saved
	return nil
}

var _ InventoryStore = (*PGInventoryStore)(nil)
