package inventory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"github.com/Domenick1991/flightdesk/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, seats int, storeOpts ...memstore.Option) (*Engine, *memstore.Store, int64) {
	t.Helper()
	store := memstore.New(storeOpts...)
	departure := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	flight := &domain.Flight{
		FlightNumber:  "SU1234",
		Origin:        "SVO",
		Destination:   "LED",
		DepartureTime: departure,
		ArrivalTime:   departure.Add(90 * time.Minute),
		TotalSeats:    seats,
	}
	require.NoError(t, store.Create(context.Background(), flight))

	engine := NewEngine(store, store.Bookings(), WithRetry(3, time.Millisecond))
	return engine, store, flight.ID
}

func available(t *testing.T, store *memstore.Store, flightID int64) int {
	t.Helper()
	f, err := store.GetByID(context.Background(), flightID)
	require.NoError(t, err)
	return f.AvailableSeats
}

// assertBalanced checks available + held == total for the flight.
func assertBalanced(t *testing.T, store *memstore.Store, flightID int64) {
	t.Helper()
	ctx := context.Background()
	f, err := store.GetByID(ctx, flightID)
	require.NoError(t, err)
	bookings, err := store.Bookings().ListByFlight(ctx, flightID)
	require.NoError(t, err)

	held := 0
	for _, b := range bookings {
		held += b.HeldSeats()
	}
	assert.Equal(t, f.TotalSeats, f.AvailableSeats+held, "available=%d held=%d", f.AvailableSeats, held)

	drifts, err := store.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestEngine_ReserveAndRelease(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	first, err := engine.Reserve(ctx, 1, flightID, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, first.Status)
	assert.Equal(t, 4, first.Seats)
	assert.Equal(t, 6, available(t, store, flightID))

	_, err = engine.Reserve(ctx, 2, flightID, 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.Equal(t, 6, available(t, store, flightID))

	released, err := engine.Release(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, released.Status)
	assert.Equal(t, 10, available(t, store, flightID))
	assertBalanced(t, store, flightID)
}

func TestEngine_Reserve_Validation(t *testing.T) {
	engine, _, flightID := newTestEngine(t, 10)

	_, err := engine.Reserve(context.Background(), 1, flightID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = engine.Reserve(context.Background(), 1, 999, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_Reserve_ExactlyFills(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 5)

	_, err := engine.Reserve(context.Background(), 1, flightID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, available(t, store, flightID))

	_, err = engine.Reserve(context.Background(), 1, flightID, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
}

func TestEngine_Release_Idempotent(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 3)
	require.NoError(t, err)

	_, err = engine.Release(ctx, b.ID)
	require.NoError(t, err)
	_, err = engine.Release(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

	assert.Equal(t, 10, available(t, store, flightID))
	assertBalanced(t, store, flightID)
}

func TestEngine_Release_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, 10)

	_, err := engine.Release(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_Resize(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 3)
	require.NoError(t, err)
	before := available(t, store, flightID)

	grown, err := engine.Resize(ctx, b.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, grown.Seats)
	assert.Equal(t, before-3, available(t, store, flightID))

	_, err = engine.Resize(ctx, b.ID, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.Equal(t, before-3, available(t, store, flightID))

	restored, err := engine.Resize(ctx, b.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Seats)
	assert.Equal(t, before, available(t, store, flightID))

	same, err := engine.Resize(ctx, b.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, same.Seats)
	assertBalanced(t, store, flightID)
}

func TestEngine_Resize_RejectsCancelled(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 3)
	require.NoError(t, err)
	_, err = engine.Release(ctx, b.ID)
	require.NoError(t, err)

	_, err = engine.Resize(ctx, b.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 10, available(t, store, flightID))

	_, err = engine.Resize(ctx, b.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEngine_OverrideStatus(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 4)
	require.NoError(t, err)

	pending, err := engine.OverrideStatus(ctx, b.ID, domain.BookingStatusPending)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, pending.Status)
	assert.Equal(t, 6, available(t, store, flightID))

	confirmed, err := engine.OverrideStatus(ctx, b.ID, domain.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, 6, available(t, store, flightID))

	again, err := engine.OverrideStatus(ctx, b.ID, domain.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, again.Status)

	cancelled, err := engine.OverrideStatus(ctx, b.ID, domain.BookingStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, available(t, store, flightID))

	twice, err := engine.OverrideStatus(ctx, b.ID, domain.BookingStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, twice.Status)
	assert.Equal(t, 10, available(t, store, flightID))

	_, err = engine.OverrideStatus(ctx, b.ID, domain.BookingStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = engine.OverrideStatus(ctx, b.ID, domain.BookingStatus("expired"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assertBalanced(t, store, flightID)
}

func TestEngine_ConcurrentReserve_TwoOfSix(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)

	var (
		wg        sync.WaitGroup
		successes int32
		shortages int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), user, flightID, 6)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				atomic.AddInt32(&shortages, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(1), shortages)
	assert.Equal(t, 4, available(t, store, flightID))
	assertBalanced(t, store, flightID)
}

func TestEngine_ConcurrentReserve_NeverOversells(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 50)

	var (
		wg     sync.WaitGroup
		booked int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(seats int) {
			defer wg.Done()
			b, err := engine.Reserve(context.Background(), 1, flightID, seats)
			if err == nil {
				atomic.AddInt64(&booked, int64(b.Seats))
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		}(i%4 + 1)
	}
	wg.Wait()

	assert.LessOrEqual(t, booked, int64(50))
	assert.Equal(t, 50-int(booked), available(t, store, flightID))
	assertBalanced(t, store, flightID)
}

func TestEngine_ConcurrentMixedOperations(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 30)
	ctx := context.Background()

	seed := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		b, err := engine.Reserve(ctx, int64(i), flightID, 2)
		require.NoError(t, err)
		seed = append(seed, b.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(i)))
			id := seed[r.Intn(len(seed))]
			switch i % 5 {
			case 0:
				_, _ = engine.Reserve(ctx, int64(i), flightID, r.Intn(4)+1)
			case 1:
				_, _ = engine.Release(ctx, id)
			case 2:
				_, _ = engine.Resize(ctx, id, r.Intn(5)+1)
			case 3:
				_, _ = engine.OverrideStatus(ctx, id, domain.BookingStatusPending)
			case 4:
				_, _ = engine.OverrideStatus(ctx, id, domain.BookingStatusCancelled)
			}
		}(i)
	}
	wg.Wait()

	assertBalanced(t, store, flightID)
}

func TestEngine_FlightsAreIndependent(t *testing.T) {
	store := memstore.New(memstore.WithLockTimeout(20 * time.Millisecond))
	ctx := context.Background()
	departure := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	a := &domain.Flight{FlightNumber: "A1", Origin: "SVO", Destination: "LED", DepartureTime: departure, ArrivalTime: departure.Add(time.Hour), TotalSeats: 5}
	b := &domain.Flight{FlightNumber: "B1", Origin: "SVO", Destination: "AER", DepartureTime: departure, ArrivalTime: departure.Add(time.Hour), TotalSeats: 5}
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	engine := NewEngine(store, store.Bookings(), WithRetry(1, 0))

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithFlightLock(ctx, a.ID, func(repository.InventoryTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	_, err := engine.Reserve(ctx, 1, b.ID, 2)
	assert.NoError(t, err)
}

func TestEngine_ConflictRetryExhausted(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10, memstore.WithLockTimeout(5*time.Millisecond))
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithFlightLock(ctx, flightID, func(repository.InventoryTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	_, err := engine.Reserve(ctx, 1, flightID, 1)
	assert.ErrorIs(t, err, domain.ErrConflictRetryExhausted)
	close(done)

	assert.Equal(t, 10, available(t, store, flightID))
}

func TestEngine_TimeoutLeavesStateUntouched(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	departure := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	f := &domain.Flight{FlightNumber: "SU1", Origin: "SVO", Destination: "LED", DepartureTime: departure, ArrivalTime: departure.Add(time.Hour), TotalSeats: 10}
	require.NoError(t, store.Create(ctx, f))
	engine := NewEngine(store, store.Bookings(), WithTimeout(10*time.Millisecond))

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithFlightLock(ctx, f.ID, func(repository.InventoryTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	_, err := engine.Reserve(ctx, 1, f.ID, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)

	assert.Equal(t, 10, available(t, store, f.ID))
	bookings, err := store.Bookings().ListByFlight(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

// failingStore runs the real store but lets a test fail one booking write
// after earlier writes in the same transaction have gone through.
type failingStore struct {
	*memstore.Store
	failSave func(b *domain.Booking) error
}

func (s *failingStore) WithFlightLock(ctx context.Context, flightID int64, fn func(tx repository.InventoryTx) error) error {
	return s.Store.WithFlightLock(ctx, flightID, func(tx repository.InventoryTx) error {
		return fn(&failingTx{InventoryTx: tx, failSave: s.failSave})
	})
}

type failingTx struct {
	repository.InventoryTx
	failSave func(b *domain.Booking) error
}

func (t *failingTx) SaveBooking(ctx context.Context, b *domain.Booking) error {
	if err := t.failSave(b); err != nil {
		return err
	}
	return t.InventoryTx.SaveBooking(ctx, b)
}

func seatsPtr(n int) *int { return &n }

func statusPtr(s domain.BookingStatus) *domain.BookingStatus { return &s }

func TestEngine_Apply(t *testing.T) {
	engine, store, flightID := newTestEngine(t, 10)
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 2)
	require.NoError(t, err)

	changed, err := engine.Apply(ctx, b.ID, Change{Seats: seatsPtr(6), Status: statusPtr(domain.BookingStatusPending)})
	require.NoError(t, err)
	assert.Equal(t, 6, changed.Seats)
	assert.Equal(t, domain.BookingStatusPending, changed.Status)
	assert.Equal(t, 4, available(t, store, flightID))

	cancelled, err := engine.Apply(ctx, b.ID, Change{Status: statusPtr(domain.BookingStatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, available(t, store, flightID))

	_, err = engine.Apply(ctx, b.ID, Change{Status: statusPtr(domain.BookingStatusCancelled)})
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Equal(t, 10, available(t, store, flightID))

	_, err = engine.Apply(ctx, b.ID, Change{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assertBalanced(t, store, flightID)
}

func TestEngine_Apply_AllOrNothing(t *testing.T) {
	_, mem, flightID := newTestEngine(t, 10)
	store := &failingStore{Store: mem, failSave: func(b *domain.Booking) error {
		if b.Status == domain.BookingStatusPending {
			return domain.ErrConflict
		}
		return nil
	}}
	engine := NewEngine(store, mem.Bookings(), WithRetry(2, time.Millisecond))
	ctx := context.Background()

	b, err := engine.Reserve(ctx, 1, flightID, 2)
	require.NoError(t, err)

	_, err = engine.Apply(ctx, b.ID, Change{Seats: seatsPtr(6), Status: statusPtr(domain.BookingStatusPending)})
	assert.ErrorIs(t, err, domain.ErrConflictRetryExhausted)

	assert.Equal(t, 8, available(t, mem, flightID))
	stored, err := mem.Bookings().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Seats)
	assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
	assertBalanced(t, mem, flightID)
}

type slowBookings struct {
	repository.BookingRepository
}

func (s slowBookings) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_TimeoutCoversBookingLookup(t *testing.T) {
	_, store, _ := newTestEngine(t, 10)
	engine := NewEngine(store, slowBookings{store.Bookings()}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := engine.Release(context.Background(), 1)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
