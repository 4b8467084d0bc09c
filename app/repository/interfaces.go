package repository

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
)

// ErrUserNotFound matches apperror.ErrNotFound.
var ErrUserNotFound = fmt.Errorf("user %w", apperror.ErrNotFound)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FindByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	RotateAPIKey(ctx context.Context, id uint) (string, *models.User, error)
	ListByRole(ctx context.Context, role string, offset, limit int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User UserRepository
}
