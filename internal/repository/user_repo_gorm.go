package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/flightdesk/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id int64) error
	// Summaries also resolves soft-deleted users so old bookings keep their owner.
	Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error)
}

type userRecord struct {
	ID             int64  `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	Role           string `gorm:"not null;default:user"`
	PhoneNumber    string
	PassportNumber string
	IsActive       bool `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (userRecord) TableName() string {
	return "users"
}

func (r userRecord) toDomain() domain.User {
	return domain.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		Role:           domain.Role(r.Role),
		PhoneNumber:    r.PhoneNumber,
		PassportNumber: r.PassportNumber,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func userRecordFrom(u *domain.User) userRecord {
	return userRecord{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		Role:           string(u.Role),
		PhoneNumber:    u.PhoneNumber,
		PassportNumber: u.PassportNumber,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

type GormUserRepository struct {
	db *gorm.DB
}

// OpenGorm connects to Postgres through gorm and migrates the users table.
func OpenGorm(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&userRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	rec := userRecordFrom(user)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return mapGormError(err)
	}
	*user = rec.toDomain()
	return nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, mapGormError(err)
	}
	u := rec.toDomain()
	return &u, nil
}

func (r *GormUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error; err != nil {
		return nil, mapGormError(err)
	}
	u := rec.toDomain()
	return &u, nil
}

func (r *GormUserRepository) List(ctx context.Context) ([]domain.User, error) {
	var recs []userRecord
	if err := r.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, mapGormError(err)
	}
	users := make([]domain.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.toDomain())
	}
	return users, nil
}

// Update writes the profile fields, role and active flag. Zero values are
// written too, so callers pass the full user.
func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	rec := userRecordFrom(user)
	res := r.db.WithContext(ctx).Model(&userRecord{ID: user.ID}).
		Select("Name", "Email", "PasswordHash", "Role", "PhoneNumber", "PassportNumber", "IsActive").
		Updates(&rec)
	if res.Error != nil {
		return mapGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&userRecord{}, id)
	if res.Error != nil {
		return mapGormError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error) {
	out := make(map[int64]domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var recs []userRecord
	if err := r.db.WithContext(ctx).Unscoped().Select("id", "name", "email").Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, mapGormError(err)
	}
	for _, rec := range recs {
		out[rec.ID] = domain.UserSummary{ID: rec.ID, Name: rec.Name, Email: rec.Email}
	}
	return out, nil
}

func mapGormError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAlreadyExists
	default:
		return err
	}
}

var _ UserRepository = (*GormUserRepository)(nil)
