package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FlightRepository never writes available_seats after creation; that is
// the InventoryStore's job.
type FlightRepository interface {
	List(ctx context.Context, filter FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	Create(ctx context.Context, flight *domain.Flight) error
	Update(ctx context.Context, flight *domain.Flight) error
	Delete(ctx context.Context, id int64) error
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func (r *PGFlightRepository) List(ctx context.Context, filter FlightFilter) ([]domain.Flight, error) {
	query, args := buildFlightQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPGError(err)
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func buildFlightQuery(filter FlightFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Origin != "" {
		args = append(args, filter.Origin)
		conds = append(conds, fmt.Sprintf("lower(origin) = lower($%d)", len(args)))
	}
	if filter.Destination != "" {
		args = append(args, filter.Destination)
		conds = append(conds, fmt.Sprintf("lower(destination) = lower($%d)", len(args)))
	}
	if !filter.Date.IsZero() {
		start := filter.Date.UTC().Truncate(24 * time.Hour)
		args = append(args, start, start.Add(24*time.Hour))
		conds = append(conds, fmt.Sprintf("departure_time >= $%d AND departure_time < $%d", len(args)-1, len(args)))
	}

	query := `SELECT ` + flightColumns + ` FROM flights`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	return query + ` ORDER BY departure_time, id`, args
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	f, err := scanFlight(r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id))
	if err != nil {
		return nil, mapPGError(err)
	}
	return &f, nil
}

// Create opens the flight with every seat available.
func (r *PGFlightRepository) Create(ctx context.Context, flight *domain.Flight) error {
	row := r.db.QueryRow(ctx, `INSERT INTO flights (flight_number, origin, destination, departure_time, arrival_time, total_seats, available_seats, price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		RETURNING `+flightColumns,
		flight.FlightNumber, flight.Origin, flight.Destination, flight.DepartureTime, flight.ArrivalTime, flight.TotalSeats, flight.PriceCents)
	created, err := scanFlight(row)
	if err != nil {
		return mapPGError(err)
	}
	*flight = created
	return nil
}

// Update rewrites the schedule and price. Seat counts are left alone.
func (r *PGFlightRepository) Update(ctx context.Context, flight *domain.Flight) error {
	row := r.db.QueryRow(ctx, `UPDATE flights
		SET flight_number=$2, origin=$3, destination=$4, departure_time=$5, arrival_time=$6, price_cents=$7, updated_at=now()
		WHERE id=$1
		RETURNING `+flightColumns,
		flight.ID, flight.FlightNumber, flight.Origin, flight.Destination, flight.DepartureTime, flight.ArrivalTime, flight.PriceCents)
	updated, err := scanFlight(row)
	if err != nil {
		return mapPGError(err)
	}
	*flight = updated
	return nil
}

// Delete refuses to drop a flight that still has pending or confirmed bookings.
// The flight row is locked first so no reservation can slip in between the
// check and the delete.
func (r *PGFlightRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM flights WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return mapPGError(err)
	}

	var active int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE flight_id=$1 AND status IN ($2, $3)`,
		id, domain.BookingStatusPending, domain.BookingStatusConfirmed).Scan(&active); err != nil {
		return mapPGError(err)
	}
	if active > 0 {
		return fmt.Errorf("%w: %d booking(s)", domain.ErrFlightHasActiveBookings, active)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE flight_id=$1`, id); err != nil {
		return mapPGError(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM flights WHERE id=$1`, id); err != nil {
		return mapPGError(err)
	}
	return mapPGError(tx.Commit(ctx))
}

var _ FlightRepository = (*PGFlightRepository)(nil)
