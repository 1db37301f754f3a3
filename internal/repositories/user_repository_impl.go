package repositories

import (
	"context"
	"errors"
	"time"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories/cache"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type userRepository struct {
	db    *gorm.DB
	cache *cache.CacheService
	log   *logrus.Logger
}

// NewUserRepository creates a new instance of UserRepository. cacheSvc may be nil.
func NewUserRepository(db *gorm.DB, cacheSvc *cache.CacheService, log *logrus.Logger) UserRepository {
	return &userRepository{
		db:    db,
		cache: cacheSvc,
		log:   log,
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return ErrDatabaseOperation
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if r.cache != nil {
		key := r.cache.GenerateKey("user", "id", id)
		if user, err := r.cache.GetUser(ctx, key); err == nil {
			return user, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	r.remember(ctx, &user)
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if r.cache != nil {
		key := r.cache.GenerateKey("user", "email", email)
		if user, err := r.cache.GetUser(ctx, key); err == nil {
			return user, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, ErrDatabaseOperation
	}

	r.remember(ctx, &user)
	return &user, nil
}

func (r *userRepository) IncrementTokenVersion(ctx context.Context, userID uuid.UUID) error {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumn("token_version", gorm.Expr("token_version + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.First(&user, "id = ?", userID).Error
	})
	if err != nil {
		return err
	}

	r.forget(ctx, user.ID, user.Email)
	return nil
}

func (r *userRepository) List(ctx context.Context, offset, limit int) ([]*models.User, int64, error) {
	var users []*models.User
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, ErrDatabaseOperation
	}

	offset, limit = page(offset, limit)
	if err := r.db.WithContext(ctx).Order("created_at ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, ErrDatabaseOperation
	}
	return users, total, nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, userID uuid.UUID, status string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("status", status)
	if result.Error != nil {
		return ErrDatabaseOperation
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err == nil {
		r.forget(ctx, user.ID, user.Email)
	}
	return nil
}

func (r *userRepository) TouchLogin(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", time.Now()).Error
}

func (r *userRepository) remember(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}
	if err := r.cache.CacheUser(ctx, user); err != nil {
		r.log.WithError(err).WithField("user_id", user.ID).Warn("failed to cache user")
	}
}

func (r *userRepository) forget(ctx context.Context, userID uuid.UUID, email string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateUser(ctx, userID, email); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate user cache")
	}
}
