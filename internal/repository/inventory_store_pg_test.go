package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	setLockTimeout  = regexp.QuoteMeta("SET LOCAL lock_timeout = 250")
	lockFlightQuery = regexp.QuoteMeta("FROM flights WHERE id=$1 FOR UPDATE")
	adjustQuery     = regexp.QuoteMeta("UPDATE flights") + `\s+SET available_seats = available_seats \+ \$2`
)

func newMockInventoryStore(t *testing.T) (*PGInventoryStore, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &PGInventoryStore{db: pool, lockTimeout: 250 * time.Millisecond}, pool
}

func flightRows(available int) *pgxmock.Rows {
	at := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{"id", "flight_number", "origin", "destination", "departure_time", "arrival_time",
		"total_seats", "available_seats", "price_cents", "created_at", "updated_at"}).
		AddRow(int64(4), "SU 100", "SVO", "LED", at, at.Add(90*time.Minute), 10, available, int64(5000), at, at)
}

func expectLockedFlight(pool pgxmock.PgxPoolIface, available int) {
	pool.ExpectBegin()
	pool.ExpectExec(setLockTimeout).WillReturnResult(pgxmock.NewResult("SET", 0))
	pool.ExpectQuery(lockFlightQuery).WithArgs(int64(4)).WillReturnRows(flightRows(available))
}

func TestPGInventoryStore_CommitsAfterFn(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	expectLockedFlight(pool, 5)
	pool.ExpectQuery(adjustQuery).WithArgs(int64(4), -3).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(2))
	pool.ExpectCommit()

	err := store.WithFlightLock(context.Background(), 4, func(tx InventoryTx) error {
		assert.Equal(t, 5, tx.Flight().AvailableSeats)
		available, err := tx.AdjustAvailable(context.Background(), -3)
		require.NoError(t, err)
		assert.Equal(t, 2, available)
		assert.Equal(t, 2, tx.Flight().AvailableSeats)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_InsufficientRollsBack(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	// The snapshot says 5 but another writer got there first.
	expectLockedFlight(pool, 5)
	pool.ExpectQuery(adjustQuery).WithArgs(int64(4), -3).WillReturnError(pgx.ErrNoRows)
	pool.ExpectRollback()

	err := store.WithFlightLock(context.Background(), 4, func(tx InventoryTx) error {
		available, err := tx.AdjustAvailable(context.Background(), -3)
		assert.Equal(t, 5, available)
		return err
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_AdjustValidatesBeforeQuery(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	expectLockedFlight(pool, 1)
	pool.ExpectRollback()

	err := store.WithFlightLock(context.Background(), 4, func(tx InventoryTx) error {
		_, err := tx.AdjustAvailable(context.Background(), -2)
		return err
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_LockNotAvailable(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	pool.ExpectBegin()
	pool.ExpectExec(setLockTimeout).WillReturnResult(pgxmock.NewResult("SET", 0))
	pool.ExpectQuery(lockFlightQuery).WithArgs(int64(4)).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	pool.ExpectRollback()

	called := false
	err := store.WithFlightLock(context.Background(), 4, func(InventoryTx) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, called)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_MissingFlight(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	pool.ExpectBegin()
	pool.ExpectExec(setLockTimeout).WillReturnResult(pgxmock.NewResult("SET", 0))
	pool.ExpectQuery(lockFlightQuery).WithArgs(int64(4)).WillReturnError(pgx.ErrNoRows)
	pool.ExpectRollback()

	err := store.WithFlightLock(context.Background(), 4, func(InventoryTx) error { return nil })

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_FnErrorDiscardsWrites(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	expectLockedFlight(pool, 5)
	pool.ExpectQuery(adjustQuery).WithArgs(int64(4), -2).
		WillReturnRows(pgxmock.NewRows([]string{"available_seats"}).AddRow(3))
	pool.ExpectRollback()

	boom := errors.New("booking insert failed")
	err := store.WithFlightLock(context.Background(), 4, func(tx InventoryTx) error {
		if _, err := tx.AdjustAvailable(context.Background(), -2); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestPGInventoryStore_Audit(t *testing.T) {
	store, pool := newMockInventoryStore(t)
	pool.ExpectQuery(regexp.QuoteMeta("FROM flights f")).
		WithArgs(domain.BookingStatusPending, domain.BookingStatusConfirmed).
		WillReturnRows(pgxmock.NewRows([]string{"id", "total_seats", "available_seats", "held"}).AddRow(int64(4), 10, 9, 3))

	drifts, err := store.Audit(context.Background())

	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, domain.FlightDrift{FlightID: 4, TotalSeats: 10, AvailableSeats: 9, HeldSeats: 3, Drift: -2}, drifts[0])
	assert.NoError(t, pool.ExpectationsWereMet())
}
