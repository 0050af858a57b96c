// Package inventory keeps every flight's available seat counter in step
// with the bookings that hold seats on it.
//
// Each operation runs inside repository.InventoryStore.WithFlightLock, so
// the read-check-write on a flight's counter and the matching booking
// write commit together and are serialised per flight. Operations on
// different flights do not wait on each other. Lock timeouts and database
// aborts surface as domain.ErrConflict and are retried a bounded number of
// times before domain.ErrConflictRetryExhausted is returned.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"go.uber.org/zap"
)

// Reconciler is the set of seat-affecting booking operations.
type Reconciler interface {
	Reserve(ctx context.Context, userID, flightID int64, seats int) (*domain.Booking, error)
	Release(ctx context.Context, bookingID int64) (*domain.Booking, error)
	Resize(ctx context.Context, bookingID int64, newSeats int) (*domain.Booking, error)
	OverrideStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) (*domain.Booking, error)
	Apply(ctx context.Context, bookingID int64, change Change) (*domain.Booking, error)
	Audit(ctx context.Context) ([]domain.FlightDrift, error)
}

// Change is a combined edit of a booking. Nil fields are left alone.
type Change struct {
	Seats  *int
	Status *domain.BookingStatus
}

const (
	defaultTimeout     = 3 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 50 * time.Millisecond
)

type Engine struct {
	store       repository.InventoryStore
	bookings    repository.BookingRepository
	logger      *zap.Logger
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

type EngineOption func(*Engine)

// WithTimeout bounds a whole operation, retries included. Zero disables it.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithRetry sets how many times a conflicting operation is attempted and
// the base delay between attempts; the delay grows linearly.
func WithRetry(maxAttempts int, backoff time.Duration) EngineOption {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		e.backoff = backoff
	}
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(store repository.InventoryStore, bookings repository.BookingRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		bookings:    bookings,
		logger:      zap.NewNop(),
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve takes seats from the flight and records a confirmed booking for them.
func (e *Engine) Reserve(ctx context.Context, userID, flightID int64, seats int) (*domain.Booking, error) {
	if seats < 1 {
		return nil, domain.Invalid("seats must be at least 1")
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	var booking *domain.Booking
	err := e.run(ctx, "reserve", flightID, func(ctx context.Context, tx repository.InventoryTx) error {
		if _, err := tx.AdjustAvailable(ctx, -seats); err != nil {
			return err
		}
		b := &domain.Booking{
			UserID:   userID,
			FlightID: flightID,
			Seats:    seats,
			Status:   domain.BookingStatusConfirmed,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Info("seats reserved",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("flight_id", flightID),
		zap.Int64("user_id", userID),
		zap.Int("seats", seats))
	return booking, nil
}

// Release cancels the booking and gives its seats back. A booking that is
// already cancelled is left alone and domain.ErrAlreadyCancelled returned.
func (e *Engine) Release(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()

	booking, err := e.onBooking(ctx, "release", bookingID, func(ctx context.Context, tx repository.InventoryTx, b *domain.Booking) error {
		if b.Status == domain.BookingStatusCancelled {
			return domain.ErrAlreadyCancelled
		}
		return cancelBooking(ctx, tx, b)
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Info("seats released",
		zap.Int64("booking_id", bookingID),
		zap.Int64("flight_id", booking.FlightID),
		zap.Int("seats", booking.Seats))
	return booking, nil
}

// Resize changes the number of seats a live booking holds.
func (e *Engine) Resize(ctx context.Context, bookingID int64, newSeats int) (*domain.Booking, error) {
	if newSeats < 1 {
		return nil, domain.Invalid("seats must be at least 1")
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	booking, err := e.onBooking(ctx, "resize", bookingID, func(ctx context.Context, tx repository.InventoryTx, b *domain.Booking) error {
		return resize(ctx, tx, b, newSeats)
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Info("booking resized",
		zap.Int64("booking_id", bookingID),
		zap.Int64("flight_id", booking.FlightID),
		zap.Int("seats", newSeats))
	return booking, nil
}

// OverrideStatus moves a booking along the state machine. Moving into
// cancelled gives the seats back; pending and confirmed both hold seats so
// switching between them leaves the counter untouched. Asking for the
// status the booking already has is a no-op.
func (e *Engine) OverrideStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown booking status %q", status))
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	var from domain.BookingStatus
	booking, err := e.onBooking(ctx, "override_status", bookingID, func(ctx context.Context, tx repository.InventoryTx, b *domain.Booking) error {
		from = b.Status
		return setStatus(ctx, tx, b, status)
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Info("booking status overridden",
		zap.Int64("booking_id", bookingID),
		zap.Int64("flight_id", booking.FlightID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))
	return booking, nil
}

// Apply makes a seat change and a status change in one transaction, seats
// first. Either both commit or neither does. Cancelling a booking that is
// already cancelled fails with domain.ErrAlreadyCancelled, as Release does.
func (e *Engine) Apply(ctx context.Context, bookingID int64, change Change) (*domain.Booking, error) {
	if change.Seats == nil && change.Status == nil {
		return nil, domain.Invalid("nothing to change")
	}
	if change.Seats != nil && *change.Seats < 1 {
		return nil, domain.Invalid("seats must be at least 1")
	}
	if change.Status != nil && !change.Status.Valid() {
		return nil, domain.Invalid(fmt.Sprintf("unknown booking status %q", *change.Status))
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()

	booking, err := e.onBooking(ctx, "apply", bookingID, func(ctx context.Context, tx repository.InventoryTx, b *domain.Booking) error {
		if change.Status != nil && *change.Status == domain.BookingStatusCancelled && b.Status == domain.BookingStatusCancelled {
			return domain.ErrAlreadyCancelled
		}
		if change.Seats != nil {
			if err := resize(ctx, tx, b, *change.Seats); err != nil {
				return err
			}
		}
		if change.Status != nil {
			return setStatus(ctx, tx, b, *change.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log(ctx).Info("booking changed",
		zap.Int64("booking_id", bookingID),
		zap.Int64("flight_id", booking.FlightID),
		zap.Int("seats", booking.Seats),
		zap.String("status", string(booking.Status)))
	return booking, nil
}

func (e *Engine) Audit(ctx context.Context) ([]domain.FlightDrift, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	return e.store.Audit(ctx)
}

// bound applies the operation timeout. It wraps every public call once so
// the booking lookup, lock waits and retries all share one deadline.
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// run executes fn under the flight lock, retrying on domain.ErrConflict.
func (e *Engine) run(ctx context.Context, op string, flightID int64, fn func(context.Context, repository.InventoryTx) error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = e.store.WithFlightLock(ctx, flightID, func(tx repository.InventoryTx) error {
			return fn(ctx, tx)
		})
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}

		e.log(ctx).Warn("inventory conflict",
			zap.String("op", op),
			zap.Int64("flight_id", flightID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == e.maxAttempts {
			break
		}

		select {
		case <-time.After(e.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s on flight %d after %d attempts: %v", domain.ErrConflictRetryExhausted, op, flightID, e.maxAttempts, err)
}

// onBooking locks the booking's flight, then the booking itself, and runs fn
// on it. The flight is found with an unlocked read; the booking is read
// again under the lock before fn decides anything.
func (e *Engine) onBooking(ctx context.Context, op string, bookingID int64, fn func(context.Context, repository.InventoryTx, *domain.Booking) error) (*domain.Booking, error) {
	current, err := e.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = e.run(ctx, op, current.FlightID, func(ctx context.Context, tx repository.InventoryTx) error {
		b, err := lockedBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (e *Engine) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, e.logger)
}

func lockedBooking(ctx context.Context, tx repository.InventoryTx, bookingID int64) (*domain.Booking, error) {
	b, err := tx.BookingForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.FlightID != tx.Flight().ID {
		return nil, fmt.Errorf("%w: booking %d moved off flight %d", domain.ErrInvalidState, bookingID, tx.Flight().ID)
	}
	return b, nil
}

func resize(ctx context.Context, tx repository.InventoryTx, b *domain.Booking, newSeats int) error {
	if !b.Status.Active() {
		return fmt.Errorf("%w: booking %d is %s", domain.ErrInvalidState, b.ID, b.Status)
	}
	delta := newSeats - b.Seats
	if delta == 0 {
		return nil
	}
	if _, err := tx.AdjustAvailable(ctx, -delta); err != nil {
		return err
	}
	b.Seats = newSeats
	return tx.SaveBooking(ctx, b)
}

func setStatus(ctx context.Context, tx repository.InventoryTx, b *domain.Booking, status domain.BookingStatus) error {
	if !domain.CanTransition(b.Status, status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.Status, status)
	}
	switch {
	case b.Status == status:
		return nil
	case status == domain.BookingStatusCancelled:
		return cancelBooking(ctx, tx, b)
	default:
		b.Status = status
		return tx.SaveBooking(ctx, b)
	}
}

// cancelBooking credits the booking's seats exactly once, as part of the same
// transaction that marks it cancelled.
func cancelBooking(ctx context.Context, tx repository.InventoryTx, b *domain.Booking) error {
	if _, err := tx.AdjustAvailable(ctx, b.Seats); err != nil {
		return err
	}
	b.Status = domain.BookingStatusCancelled
	return tx.SaveBooking(ctx, b)
}

var _ Reconciler = (*Engine)(nil)
