package interfaces

import (
	"context"

	"account-server/shared/models"
)

// SecurityEventPublisher delivers account security events to interested consumers.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event models.SecurityEvent) error
}
