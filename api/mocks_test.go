package api

import (
	"context"
	"errors"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"github.com/Domenick1991/flightdesk/internal/service/booking"
	"github.com/Domenick1991/flightdesk/internal/service/flights"
	"github.com/Domenick1991/flightdesk/internal/service/users"
	"github.com/stretchr/testify/mock"
)

type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) details(args mock.Arguments) (*domain.BookingDetails, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingDetails), args.Error(1)
}

func (m *MockBookingUseCase) CreateBooking(ctx context.Context, userID int64, input booking.CreateBookingInput) (*domain.BookingDetails, error) {
	return m.details(m.Called(ctx, userID, input))
}

func (m *MockBookingUseCase) GetBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error) {
	return m.details(m.Called(ctx, bookingID, requester))
}

func (m *MockBookingUseCase) ListBookings(ctx context.Context) ([]domain.BookingDetails, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.BookingDetails), args.Error(1)
}

func (m *MockBookingUseCase) ListMyBookings(ctx context.Context, userID int64) ([]domain.BookingDetails, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.BookingDetails), args.Error(1)
}

func (m *MockBookingUseCase) ListFlightBookings(ctx context.Context, flightID int64) ([]domain.BookingDetails, error) {
	args := m.Called(ctx, flightID)
	return args.Get(0).([]domain.BookingDetails), args.Error(1)
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, bookingID int64, requester domain.Requester) (*domain.BookingDetails, error) {
	return m.details(m.Called(ctx, bookingID, requester))
}

func (m *MockBookingUseCase) UpdateBooking(ctx context.Context, bookingID int64, requester domain.Requester, patch booking.BookingPatch) (*domain.BookingDetails, error) {
	return m.details(m.Called(ctx, bookingID, requester, patch))
}

func (m *MockBookingUseCase) AdminSetStatus(ctx context.Context, bookingID int64, status domain.BookingStatus) (*domain.BookingDetails, error) {
	return m.details(m.Called(ctx, bookingID, status))
}

type MockFlightUseCase struct {
	mock.Mock
}

func (m *MockFlightUseCase) List(ctx context.Context, filter repository.FlightFilter) ([]domain.Flight, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) Create(ctx context.Context, input flights.FlightInput) (*domain.Flight, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) Update(ctx context.Context, id int64, input flights.FlightUpdate) (*domain.Flight, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type MockUserUseCase struct {
	mock.Mock
}

func (m *MockUserUseCase) auth(args mock.Arguments) (*users.AuthResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*users.AuthResult), args.Error(1)
}

func (m *MockUserUseCase) Register(ctx context.Context, input users.RegisterInput) (*users.AuthResult, error) {
	return m.auth(m.Called(ctx, input))
}

func (m *MockUserUseCase) Login(ctx context.Context, input users.LoginInput) (*users.AuthResult, error) {
	return m.auth(m.Called(ctx, input))
}

func (m *MockUserUseCase) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserUseCase) List(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockUserUseCase) Update(ctx context.Context, id int64, input users.UserUpdate) (*domain.User, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserUseCase) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserUseCase) UpdateMe(ctx context.Context, id int64, input users.ProfileUpdate) (*domain.User, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserUseCase) ChangePassword(ctx context.Context, id int64, input users.PasswordChange) (*users.AuthResult, error) {
	return m.auth(m.Called(ctx, id, input))
}

// stubTokens maps fixed token strings to requesters.
type stubTokens map[string]domain.Requester

func (s stubTokens) Verify(token string) (domain.Requester, error) {
	r, ok := s[token]
	if !ok {
		return domain.Requester{}, errors.New("bad token")
	}
	return r, nil
}

var testTokens = stubTokens{
	"owner": {UserID: 7, Role: domain.RoleUser},
	"other": {UserID: 8, Role: domain.RoleUser},
	"admin": {UserID: 1, Role: domain.RoleAdmin},
}
