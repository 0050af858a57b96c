package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrForbidden               = errors.New("forbidden")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidState            = errors.New("invalid booking state")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrAlreadyCancelled        = errors.New("booking already cancelled")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrAlreadyExists           = errors.New("already exists")
	ErrFlightHasActiveBookings = errors.New("flight has active bookings")

	// ErrConflict is returned by stores when a lock could not be taken in time
	// or the database aborted the transaction; the engine retries it.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrConflictRetryExhausted is what callers see once the retries ran out.
	ErrConflictRetryExhausted = errors.New("conflict retries exhausted")
)

// Invalid wraps ErrInvalidArgument with a human readable reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, reason)
}
