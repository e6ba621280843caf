package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
type User struct {
	ID           uuid.UUID `json:"_id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"fullName"`
	Avatar       string    `db:"avatar" json:"avatar"`
	CoverImage   string    `db:"cover_image" json:"coverImage"`
	PasswordHash string    `db:"password_hash" json:"-"`
	// RefreshTokenHash is the SHA-256 digest of the active refresh token, empty without a session.
	RefreshTokenHash     string     `db:"refresh_token_hash" json:"-"`
	RefreshTokenIssuedAt *time.Time `db:"refresh_token_issued_at" json:"-"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// UserUpdate carries the profile fields to change. Nil fields are left untouched.
type UserUpdate struct {
	FullName   *string
	Email      *string
	Avatar     *string
	CoverImage *string
}
