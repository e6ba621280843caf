package models

import "errors"

// Application-wide standard errors
var (
	// User & Authentication Errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this username already exists")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("unauthorized")

	// Token Errors
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
	// ErrTokenReused means a refresh token that is no longer the principal's current one
	// was presented. It is a security event, never a retryable condition.
	ErrTokenReused = errors.New("refresh token expired or used")

	// Storage Errors (transient)
	ErrStoreUnavailable = errors.New("principal store unavailable")
	ErrConcurrentUpdate = errors.New("concurrent session update")

	// Media Errors
	ErrMediaMissing = errors.New("media file is required")
	ErrMediaUpload  = errors.New("media upload failed")

	// General Request/Server Errors
	ErrRateLimited  = errors.New("too many requests")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidInput = errors.New("invalid input data")
)
