package service

import (
	"context"

	"account-server/shared/models"

	"github.com/google/uuid"
)

// RegisterInput is what a sign-up form carries. AvatarPath and CoverImagePath point to
// temporary local files which the service removes once it is done with them.
type RegisterInput struct {
	FullName       string
	Email          string
	Username       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// SessionManager is the session lifecycle the account service drives.
// *session.Manager implements it.
type SessionManager interface {
	Issue(ctx context.Context, principalID uuid.UUID) (*models.TokenPair, error)
	VerifyAccess(ctx context.Context, token string) (uuid.UUID, error)
	Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Revoke(ctx context.Context, principalID uuid.UUID) error
}

// AccountService defines user account operations on top of sessions.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, identifier, password string) (*models.User, *models.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateAccountDetails(ctx context.Context, userID uuid.UUID, fullName, email string) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)
}
