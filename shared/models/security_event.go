package models

import (
	"time"

	"github.com/google/uuid"
)

// SecurityEventType names an account security event.
type SecurityEventType string

const (
	SecurityEventRefreshTokenReused SecurityEventType = "refresh_token_reused"
	SecurityEventPasswordChanged    SecurityEventType = "password_changed"
	SecurityEventSessionRevoked     SecurityEventType = "session_revoked"
)

// SecurityEvent is published whenever something security-relevant happens to an account.
// It never carries token material.
type SecurityEvent struct {
	Type       SecurityEventType `json:"type"`
	UserID     uuid.UUID         `json:"userId"`
	OccurredAt time.Time         `json:"occurredAt"`
	ClientIP   string            `json:"clientIp,omitempty"`
	Detail     string            `json:"detail,omitempty"`
}
