// Package memstore is an in-process implementation of the flight, booking
// and inventory stores. Every flight gets its own lock so reservations on
// different flights never wait on each other.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	flights  map[int64]domain.Flight
	bookings map[int64]domain.Booking
	locks    map[int64]chan struct{}

	nextFlightID  int64
	nextBookingID int64

	lockTimeout time.Duration
	now         func() time.Time
}

type Option func(*Store)

// WithLockTimeout bounds how long WithFlightLock waits before giving up
// with domain.ErrConflict. Zero waits until the context ends.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		flights:  make(map[int64]domain.Flight),
		bookings: make(map[int64]domain.Booking),
		locks:    make(map[int64]chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) flightLock(flightID int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[flightID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[flightID] = l
	}
	return l
}

func (s *Store) acquire(ctx context.Context, flightID int64) (func(), error) {
	l := s.flightLock(flightID)
	release := func() { <-l }

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l <- struct{}{}:
		return release, nil
	case <-timeout:
		return nil, fmt.Errorf("%w: flight %d lock wait exceeded %s", domain.ErrConflict, flightID, s.lockTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithFlightLock stages fn's writes and applies them only if fn succeeds
// and ctx is still alive.
func (s *Store) WithFlightLock(ctx context.Context, flightID int64, fn func(tx repository.InventoryTx) error) error {
	release, err := s.acquire(ctx, flightID)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	flight, ok := s.flights[flightID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}

	tx := &memTx{store: s, flight: flight, staged: make(map[int64]domain.Booking)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Only the counter is owned by the lock holder; schedule and price edits
	// made meanwhile through Update must survive the commit.
	if current, ok := s.flights[flightID]; ok && tx.flightDirty {
		current.AvailableSeats = tx.flight.AvailableSeats
		current.UpdatedAt = tx.flight.UpdatedAt
		s.flights[flightID] = current
	}
	for id, b := range tx.staged {
		s.bookings[id] = b
	}
	return nil
}

func (s *Store) Audit(ctx context.Context) ([]domain.FlightDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := make(map[int64]int, len(s.flights))
	for _, b := range s.bookings {
		held[b.FlightID] += b.HeldSeats()
	}

	drifts := make([]domain.FlightDrift, 0)
	for id, f := range s.flights {
		d := domain.FlightDrift{
			FlightID:       id,
			TotalSeats:     f.TotalSeats,
			AvailableSeats: f.AvailableSeats,
			HeldSeats:      held[id],
		}
		d.Drift = d.TotalSeats - d.AvailableSeats - d.HeldSeats
		if d.Drift != 0 {
			drifts = append(drifts, d)
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].FlightID < drifts[j].FlightID })
	return drifts, nil
}

type memTx struct {
	store       *Store
	flight      domain.Flight
	flightDirty bool
	staged      map[int64]domain.Booking
}

func (t *memTx) Flight() domain.Flight {
	return t.flight
}

func (t *memTx) AdjustAvailable(ctx context.Context, delta int) (int, error) {
	if err := t.flight.ValidateSeatDelta(delta); err != nil {
		return t.flight.AvailableSeats, err
	}
	t.flight.AvailableSeats += delta
	t.flight.UpdatedAt = t.store.now()
	t.flightDirty = true
	return t.flight.AvailableSeats, nil
}

func (t *memTx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	if booking.Seats < 1 {
		return domain.Invalid("seats must be at least 1")
	}
	t.store.mu.Lock()
	t.store.nextBookingID++
	id := t.store.nextBookingID
	t.store.mu.Unlock()

	now := t.store.now()
	booking.ID = id
	booking.FlightID = t.flight.ID
	booking.CreatedAt = now
	booking.UpdatedAt = now
	t.staged[id] = *booking
	return nil
}

func (t *memTx) BookingForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	if b, ok := t.staged[id]; ok {
		return &b, nil
	}
	t.store.mu.RLock()
	b, ok := t.store.bookings[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) SaveBooking(ctx context.Context, booking *domain.Booking) error {
	current, err := t.BookingForUpdate(ctx, booking.ID)
	if err != nil {
		return err
	}
	current.Seats = booking.Seats
	current.Status = booking.Status
	current.UpdatedAt = t.store.now()
	t.staged[current.ID] = *current
	*booking = *current
	return nil
}

func (s *Store) List(ctx context.Context, filter repository.FlightFilter) ([]domain.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end time.Time
	if !filter.Date.IsZero() {
		start = filter.Date.UTC().Truncate(24 * time.Hour)
		end = start.Add(24 * time.Hour)
	}

	flights := make([]domain.Flight, 0, len(s.flights))
	for _, f := range s.flights {
		if filter.Origin != "" && !strings.EqualFold(f.Origin, filter.Origin) {
			continue
		}
		if filter.Destination != "" && !strings.EqualFold(f.Destination, filter.Destination) {
			continue
		}
		if !start.IsZero() && (f.DepartureTime.Before(start) || !f.DepartureTime.Before(end)) {
			continue
		}
		flights = append(flights, f)
	}
	sort.Slice(flights, func(i, j int) bool {
		if flights[i].DepartureTime.Equal(flights[j].DepartureTime) {
			return flights[i].ID < flights[j].ID
		}
		return flights[i].DepartureTime.Before(flights[j].DepartureTime)
	})
	return flights, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flights[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (s *Store) Create(ctx context.Context, flight *domain.Flight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numberTaken(flight.FlightNumber, 0) {
		return fmt.Errorf("%w: flight number %s", domain.ErrAlreadyExists, flight.FlightNumber)
	}

	s.nextFlightID++
	now := s.now()
	flight.ID = s.nextFlightID
	flight.AvailableSeats = flight.TotalSeats
	flight.CreatedAt = now
	flight.UpdatedAt = now
	s.flights[flight.ID] = *flight
	return nil
}

func (s *Store) Update(ctx context.Context, flight *domain.Flight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.flights[flight.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.numberTaken(flight.FlightNumber, flight.ID) {
		return fmt.Errorf("%w: flight number %s", domain.ErrAlreadyExists, flight.FlightNumber)
	}

	current.FlightNumber = flight.FlightNumber
	current.Origin = flight.Origin
	current.Destination = flight.Destination
	current.DepartureTime = flight.DepartureTime
	current.ArrivalTime = flight.ArrivalTime
	current.PriceCents = flight.PriceCents
	current.UpdatedAt = s.now()
	s.flights[current.ID] = current
	*flight = current
	return nil
}

func (s *Store) numberTaken(number string, except int64) bool {
	for id, f := range s.flights {
		if id != except && f.FlightNumber == number {
			return true
		}
	}
	return false
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flights[id]; !ok {
		return domain.ErrNotFound
	}

	active := 0
	for _, b := range s.bookings {
		if b.FlightID == id && b.Status.Active() {
			active++
		}
	}
	if active > 0 {
		return fmt.Errorf("%w: %d booking(s)", domain.ErrFlightHasActiveBookings, active)
	}

	for bid, b := range s.bookings {
		if b.FlightID == id {
			delete(s.bookings, bid)
		}
	}
	delete(s.flights, id)
	// Waiters still hold the old channel and will find the flight gone.
	delete(s.locks, id)
	return nil
}

// Bookings exposes the booking read side. It is a separate value because
// its method set overlaps the flight repository's.
func (s *Store) Bookings() repository.BookingRepository {
	return bookingReader{s}
}

type bookingReader struct {
	s *Store
}

func (r bookingReader) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r bookingReader) List(ctx context.Context) ([]domain.Booking, error) {
	return r.filter(func(domain.Booking) bool { return true }), nil
}

func (r bookingReader) ListByFlight(ctx context.Context, flightID int64) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool { return b.FlightID == flightID }), nil
}

func (r bookingReader) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (r bookingReader) filter(keep func(domain.Booking) bool) []domain.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Booking, 0)
	for _, b := range r.s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var (
	_ repository.FlightRepository  = (*Store)(nil)
	_ repository.InventoryStore    = (*Store)(nil)
	_ repository.BookingRepository = bookingReader{}
)
