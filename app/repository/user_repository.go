package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{User: NewUserRepository(db)}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindByAPIKeyHash resolves an API key hash to its user. Users without a key never match.
func (r *userRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	err := r.db.WithContext(ctx).Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// RotateAPIKey issues a new key and stores its hash, revoking the previous one.
// The raw key is returned once and never persisted.
func (r *userRepository) RotateAPIKey(ctx context.Context, id uint) (string, *models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	raw, err := user.IssueAPIKey()
	if err != nil {
		return "", nil, err
	}
	err = r.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"api_key_hash":   user.APIKeyHash,
		"api_key_prefix": user.APIKeyPrefix,
	}).Error
	if err != nil {
		return "", nil, err
	}
	return raw, user, nil
}

// ListByRole retrieves a page of users with the given role, newest first
func (r *userRepository) ListByRole(ctx context.Context, role string, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Where("role = ?", role).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}
