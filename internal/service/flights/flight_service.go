package flights

import (
	"context"
	"strings"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"go.uber.org/zap"
)

type FlightUseCase interface {
	List(ctx context.Context, filter repository.FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	Create(ctx context.Context, input FlightInput) (*domain.Flight, error)
	Update(ctx context.Context, id int64, input FlightUpdate) (*domain.Flight, error)
	Delete(ctx context.Context, id int64) error
}

type FlightCache interface {
	GetFlights(ctx context.Context, filter repository.FlightFilter) ([]domain.Flight, error)
	SetFlights(ctx context.Context, filter repository.FlightFilter, flights []domain.Flight) error
	InvalidateFlights(ctx context.Context) error
}

type FlightInput struct {
	FlightNumber  string    `json:"flight_number" binding:"required"`
	Origin        string    `json:"origin" binding:"required"`
	Destination   string    `json:"destination" binding:"required"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time `json:"arrival_time" binding:"required"`
	TotalSeats    int       `json:"total_seats" binding:"gte=0"`
	PriceCents    int64     `json:"price_cents" binding:"gte=0"`
}

// FlightUpdate changes schedule and price. Capacity is fixed once created.
type FlightUpdate struct {
	FlightNumber  *string    `json:"flight_number"`
	Origin        *string    `json:"origin"`
	Destination   *string    `json:"destination"`
	DepartureTime *time.Time `json:"departure_time"`
	ArrivalTime   *time.Time `json:"arrival_time"`
	PriceCents    *int64     `json:"price_cents"`
}

type FlightService struct {
	repo   repository.FlightRepository
	cache  FlightCache
	logger *zap.Logger
}

func NewFlightService(repo repository.FlightRepository, cache FlightCache, log *zap.Logger) *FlightService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FlightService{repo: repo, cache: cache, logger: log}
}

func (s *FlightService) List(ctx context.Context, filter repository.FlightFilter) ([]domain.Flight, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetFlights(ctx, filter); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			s.log(ctx).Warn("flights cache read failed", zap.Error(err))
		}
	}

	flights, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFlights(ctx, filter, flights); err != nil {
			s.log(ctx).Warn("flights cache write failed", zap.Error(err))
		}
	}
	return flights, nil
}

func (s *FlightService) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *FlightService) Create(ctx context.Context, input FlightInput) (*domain.Flight, error) {
	flight := &domain.Flight{
		FlightNumber:  domain.NormalizeFlightNumber(input.FlightNumber),
		Origin:        strings.TrimSpace(input.Origin),
		Destination:   strings.TrimSpace(input.Destination),
		DepartureTime: input.DepartureTime.UTC(),
		ArrivalTime:   input.ArrivalTime.UTC(),
		TotalSeats:    input.TotalSeats,
		PriceCents:    input.PriceCents,
	}
	if err := flight.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, flight); err != nil {
		return nil, err
	}

	s.log(ctx).Info("flight created", zap.Int64("flight_id", flight.ID), zap.String("flight_number", flight.FlightNumber))
	s.invalidate(ctx)
	return flight, nil
}

func (s *FlightService) Update(ctx context.Context, id int64, input FlightUpdate) (*domain.Flight, error) {
	flight, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.FlightNumber != nil {
		flight.FlightNumber = domain.NormalizeFlightNumber(*input.FlightNumber)
	}
	if input.Origin != nil {
		flight.Origin = strings.TrimSpace(*input.Origin)
	}
	if input.Destination != nil {
		flight.Destination = strings.TrimSpace(*input.Destination)
	}
	if input.DepartureTime != nil {
		flight.DepartureTime = input.DepartureTime.UTC()
	}
	if input.ArrivalTime != nil {
		flight.ArrivalTime = input.ArrivalTime.UTC()
	}
	if input.PriceCents != nil {
		flight.PriceCents = *input.PriceCents
	}
	if err := flight.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, flight); err != nil {
		return nil, err
	}

	s.log(ctx).Info("flight updated", zap.Int64("flight_id", id))
	s.invalidate(ctx)
	return flight, nil
}

// Delete refuses while the flight still has pending or confirmed bookings.
func (s *FlightService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log(ctx).Info("flight deleted", zap.Int64("flight_id", id))
	s.invalidate(ctx)
	return nil
}

func (s *FlightService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFlights(ctx); err != nil {
		s.log(ctx).Warn("failed to invalidate flights cache", zap.Error(err))
	}
}

func (s *FlightService) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.logger)
}

var _ FlightUseCase = (*FlightService)(nil)
