package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/kafka"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"github.com/Domenick1991/flightdesk/internal/service/inventory"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, userID int64, input CreateBookingInput) (*domain.BookingDetails, error)
	GetBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error)
	ListBookings(ctx context.Context) ([]domain.BookingDetails, error)
	ListMyBookings(ctx context.Context, userID int64) ([]domain.BookingDetails, error)
	ListFlightBookings(ctx context.Context, flightID int64) ([]domain.BookingDetails, error)
	CancelBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error)
	UpdateBooking(ctx context.Context, bookingID int64, requester domain.Requester, patch BookingPatch) (*domain.BookingDetails, error)
	AdminSetStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) (*domain.BookingDetails, error)
}

type Cache interface {
	InvalidateFlights(ctx context.Context) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type FlightLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
}

type UserLookup interface {
	Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error)
}

type CreateBookingInput struct {
	FlightID int64 `json:"flight_id" binding:"required"`
	Seats    int   `json:"seats" binding:"required"`
}

// BookingPatch carries the optional fields of an update. Nil means unchanged.
type BookingPatch struct {
	Seats  *int                  `json:"seats"`
	Status *domain.BookingStatus `json:"status"`
}

type BookingService struct {
	engine             inventory.Reconciler
	bookings           repository.BookingRepository
	flights            FlightLookup
	users              UserLookup
	cache              Cache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	logger             *zap.Logger
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithLogger(l *zap.Logger) BookingServiceOption {
	return func(s *BookingService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewBookingService(
	engine inventory.Reconciler,
	bookings repository.BookingRepository,
	flights FlightLookup,
	users UserLookup,
	cache Cache,
	producer Producer,
	bookingTopic string,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		engine:       engine,
		bookings:     bookings,
		flights:      flights,
		users:        users,
		cache:        cache,
		producer:     producer,
		bookingTopic: bookingTopic,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *BookingService) CreateBooking(ctx context.Context, userID int64, input CreateBookingInput) (*domain.BookingDetails, error) {
	if input.Seats < 1 {
		return nil, domain.Invalid("seats must be at least 1")
	}
	if _, err := s.flights.GetByID(ctx, input.FlightID); err != nil {
		return nil, fmt.Errorf("flight %d: %w", input.FlightID, err)
	}

	booking, err := s.engine.Reserve(ctx, userID, input.FlightID, input.Seats)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, kafka.EventBookingCreated, booking), nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error) {
	booking, err := s.authorize(ctx, bookingID, requester)
	if err != nil {
		return nil, err
	}
	return s.detailsOne(ctx, booking), nil
}

func (s *BookingService) ListBookings(ctx context.Context) ([]domain.BookingDetails, error) {
	bookings, err := s.bookings.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, bookings), nil
}

func (s *BookingService) ListMyBookings(ctx context.Context, userID int64) ([]domain.BookingDetails, error) {
	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, bookings), nil
}

func (s *BookingService) ListFlightBookings(ctx context.Context, flightID int64) ([]domain.BookingDetails, error) {
	if _, err := s.flights.GetByID(ctx, flightID); err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, bookings), nil
}

func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error) {
	if _, err := s.authorize(ctx, bookingID, requester); err != nil {
		return nil, err
	}

	booking, err := s.engine.Release(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, kafka.EventBookingCancelled, booking), nil
}

// UpdateBooking applies a seat change and a status change in a single
// engine transaction. Only admins may set a status other than cancelled.
// Status is matched case-insensitively, as on the admin status route.
func (s *BookingService) UpdateBooking(ctx context.Context, bookingID int64, requester domain.Requester, patch BookingPatch) (*domain.BookingDetails, error) {
	if patch.Seats == nil && patch.Status == nil {
		return nil, domain.Invalid("nothing to update")
	}
	if patch.Seats != nil && *patch.Seats < 1 {
		return nil, domain.Invalid("seats must be at least 1")
	}
	change := inventory.Change{Seats: patch.Seats}
	if patch.Status != nil {
		status, err := domain.ParseBookingStatus(string(*patch.Status))
		if err != nil {
			return nil, err
		}
		if !requester.IsAdmin() && status != domain.BookingStatusCancelled {
			return nil, fmt.Errorf("%w: only admins may set status %s", domain.ErrForbidden, status)
		}
		change.Status = &status
	}

	if _, err := s.authorize(ctx, bookingID, requester); err != nil {
		return nil, err
	}

	booking, err := s.engine.Apply(ctx, bookingID, change)
	if err != nil {
		return nil, err
	}
	eventType := kafka.EventBookingUpdated
	if change.Status != nil && *change.Status == domain.BookingStatusCancelled {
		eventType = kafka.EventBookingCancelled
	}
	return s.afterMutation(ctx, eventType, booking), nil
}

func (s *BookingService) AdminSetStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) (*domain.BookingDetails, error) {
	booking, err := s.engine.OverrideStatus(ctx, bookingID, status)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, kafka.EventBookingStatusChanged, booking), nil
}

// authorize loads the booking and checks the requester may act on it.
func (s *BookingService) authorize(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccess(booking) {
		return nil, fmt.Errorf("%w: booking %d", domain.ErrForbidden, bookingID)
	}
	return booking, nil
}

// afterMutation runs once the seat change is committed. Failures here are
// logged and never undo the booking.
func (s *BookingService) afterMutation(ctx context.Context, eventType string, booking *domain.Booking) *domain.BookingDetails {
	log := logger.FromContext(ctx, s.logger)
	details := s.detailsOne(ctx, booking)

	if s.cache != nil {
		if err := s.cache.InvalidateFlights(ctx); err != nil {
			log.Warn("failed to invalidate flights cache", zap.Int64("booking_id", booking.ID), zap.Error(err))
		}
	}
	if err := s.publish(ctx, eventType, details); err != nil {
		log.Warn("failed to publish booking event",
			zap.String("event", eventType),
			zap.Int64("booking_id", booking.ID),
			zap.Error(err))
	}
	return details
}

func (s *BookingService) publish(ctx context.Context, eventType string, details *domain.BookingDetails) error {
	if s.producer == nil || s.bookingTopic == "" {
		return nil
	}
	event := kafka.NewBookingEvent(eventType, details)
	key := strconv.FormatInt(details.ID, 10)

	var errs []error
	if err := s.producer.Publish(ctx, s.bookingTopic, key, event); err != nil {
		errs = append(errs, err)
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, key, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *BookingService) detailsOne(ctx context.Context, booking *domain.Booking) *domain.BookingDetails {
	out := s.details(ctx, []domain.Booking{*booking})
	return &out[0]
}

// details joins bookings with their flight and owner. Lookup failures leave
// the corresponding field nil rather than failing the read.
func (s *BookingService) details(ctx context.Context, bookings []domain.Booking) []domain.BookingDetails {
	log := logger.FromContext(ctx, s.logger)

	flights := make(map[int64]*domain.Flight)
	userIDs := make([]int64, 0, len(bookings))
	seenUsers := make(map[int64]bool)
	for _, b := range bookings {
		if _, ok := flights[b.FlightID]; !ok {
			f, err := s.flights.GetByID(ctx, b.FlightID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.Warn("failed to load flight for booking", zap.Int64("flight_id", b.FlightID), zap.Error(err))
			}
			flights[b.FlightID] = f
		}
		if !seenUsers[b.UserID] {
			seenUsers[b.UserID] = true
			userIDs = append(userIDs, b.UserID)
		}
	}

	var users map[int64]domain.UserSummary
	if s.users != nil && len(userIDs) > 0 {
		var err error
		if users, err = s.users.Summaries(ctx, userIDs); err != nil {
			log.Warn("failed to load booking owners", zap.Error(err))
		}
	}

	out := make([]domain.BookingDetails, 0, len(bookings))
	for _, b := range bookings {
		d := domain.BookingDetails{Booking: b, Flight: flights[b.FlightID]}
		if u, ok := users[b.UserID]; ok {
			u := u
			d.User = &u
		}
		out = append(out, d)
	}
	return out
}

var _ BookingUseCase = (*BookingService)(nil)
