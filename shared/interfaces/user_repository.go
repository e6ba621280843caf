package interfaces

import (
	"context"

	"account-server/shared/models"

	"github.com/google/uuid"
)

// UserRepository defines user data persistence (PostgreSQL).
type UserRepository interface {
	// CreateUser inserts a new user and fills in ID and timestamps.
	// Uniqueness of username and email is enforced by the storage layer:
	// violations return models.ErrUserAlreadyExists or models.ErrEmailAlreadyExists.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByID returns models.ErrUserNotFound if the user does not exist.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetUserByUsernameOrEmail matches either column (both are stored lower-cased).
	// Returns models.ErrUserNotFound if nothing matches.
	GetUserByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error)

	// UpdateUserFields updates only the non-nil fields and returns the updated user.
	UpdateUserFields(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error)

	// UpdatePasswordHash replaces the user's password hash.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
}
