package session

import (
	"context"
	"errors"
	"fmt"

	"account-server/shared/models"

	"github.com/google/uuid"
)

// ReuseError is returned by Rotate when the presented refresh token is not the
// principal's current one. errors.Is(err, models.ErrTokenReused) holds for it.
type ReuseError struct {
	PrincipalID uuid.UUID
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("principal %s: %s", e.PrincipalID, models.ErrTokenReused)
}

func (e *ReuseError) Unwrap() error {
	return models.ErrTokenReused
}

// mapStoreError keeps models.ErrUserNotFound and turns everything else into a
// transient models.ErrStoreUnavailable.
func mapStoreError(op string, err error) error {
	if errors.Is(err, models.ErrUserNotFound) {
		return models.ErrUserNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: store call timed out", op, models.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
