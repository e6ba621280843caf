package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is the manager's view of an account.
type Principal struct {
	ID             uuid.UUID
	CredentialHash string
	// CurrentRefreshToken is the digest of the only valid refresh token, empty when
	// the principal has no session.
	CurrentRefreshToken  string
	RefreshTokenIssuedAt *time.Time
}

// PrincipalStore is the persistence the Manager relies on.
type PrincipalStore interface {
	// GetPrincipal returns models.ErrUserNotFound when id does not exist.
	GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error)

	// CompareAndSetRefreshToken atomically replaces the current refresh token digest
	// with newValue only if it still equals expectedOld ("" matches no session).
	// It reports false when the slot held something else or the principal is gone.
	CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error)

	// ClearRefreshToken ends the principal's session. It reports false when the
	// principal does not exist.
	ClearRefreshToken(ctx context.Context, id uuid.UUID) (bool, error)
}
