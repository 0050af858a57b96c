package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightdesk/internal/auth"
	"github.com/Domenick1991/flightdesk/internal/domain"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"go.uber.org/zap"
)

const minPasswordLength = 6

type UserUseCase interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id int64, input UserUpdate) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	UpdateMe(ctx context.Context, id int64, input ProfileUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, id int64, input PasswordChange) (*AuthResult, error)
}

type TokenIssuer interface {
	Issue(user *domain.User) (string, error)
}

type RegisterInput struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	PhoneNumber    string `json:"phone_number"`
	PassportNumber string `json:"passport_number"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserUpdate is the admin edit of an account. Nil fields stay unchanged.
type UserUpdate struct {
	Name           *string      `json:"name"`
	PhoneNumber    *string      `json:"phone_number"`
	PassportNumber *string      `json:"passport_number"`
	Role           *domain.Role `json:"role"`
	IsActive       *bool        `json:"is_active"`
}

// ProfileUpdate is what a user may change on their own account.
type ProfileUpdate struct {
	Name           *string `json:"name"`
	Email          *string `json:"email"`
	PhoneNumber    *string `json:"phone_number"`
	PassportNumber *string `json:"passport_number"`
}

type PasswordChange struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type UserService struct {
	repo       repository.UserRepository
	tokens     TokenIssuer
	bcryptCost int
	logger     *zap.Logger
}

func NewUserService(repo repository.UserRepository, tokens TokenIssuer, bcryptCost int, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{repo: repo, tokens: tokens, bcryptCost: bcryptCost, logger: log}
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(input.Name)
	email := domain.NormalizeEmail(input.Email)
	switch {
	case name == "":
		return nil, domain.Invalid("name is required")
	case email == "":
		return nil, domain.Invalid("email is required")
	case len(input.Password) < minPasswordLength:
		return nil, domain.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		Role:           domain.RoleUser,
		PhoneNumber:    strings.TrimSpace(input.PhoneNumber),
		PassportNumber: strings.TrimSpace(input.PassportNumber),
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("user registered", zap.Int64("user_id", user.ID))
	return s.issue(user)
}

// Login answers every failure with domain.ErrUnauthorized so callers cannot
// tell unknown emails from wrong passwords.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.repo.GetByEmail(ctx, domain.NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is deactivated", domain.ErrUnauthorized)
	}
	return s.issue(user)
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) Update(ctx context.Context, id int64, input UserUpdate) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.Invalid("name must not be empty")
		}
		user.Name = name
	}
	if input.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.PassportNumber != nil {
		user.PassportNumber = strings.TrimSpace(*input.PassportNumber)
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, domain.Invalid(fmt.Sprintf("unknown role %q", *input.Role))
		}
		user.Role = *input.Role
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("user updated", zap.Int64("user_id", id))
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx, s.logger).Info("user deleted", zap.Int64("user_id", id))
	return nil
}

// UpdateMe is the self-service profile edit. Role and active flag are left
// to admins.
func (s *UserService) UpdateMe(ctx context.Context, id int64, input ProfileUpdate) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.Invalid("name must not be empty")
		}
		user.Name = name
	}
	if input.Email != nil {
		email := domain.NormalizeEmail(*input.Email)
		if email == "" {
			return nil, domain.Invalid("email must not be empty")
		}
		user.Email = email
	}
	if input.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.PassportNumber != nil {
		user.PassportNumber = strings.TrimSpace(*input.PassportNumber)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Info("profile updated", zap.Int64("user_id", id))
	return user, nil
}

// ChangePassword requires the current password and answers with a fresh token.
func (s *UserService) ChangePassword(ctx context.Context, id int64, input PasswordChange) (*AuthResult, error) {
	if len(input.NewPassword) < minPasswordLength {
		return nil, domain.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, input.CurrentPassword) {
		return nil, fmt.Errorf("%w: current password is incorrect", domain.ErrUnauthorized)
	}

	hash, err := auth.HashPassword(input.NewPassword, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.logger).Info("password changed", zap.Int64("user_id", id))
	return s.issue(user)
}

func (s *UserService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

var _ UserUseCase = (*UserService)(nil)
