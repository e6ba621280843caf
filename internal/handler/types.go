package handler

import (
	"regexp"
	"unicode"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 8
	maxPasswordLength = 100
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// registerRequest is bound from a multipart form; files are read separately.
type registerRequest struct {
	FullName string `form:"fullName" binding:"required,max=100"`
	Email    string `form:"email" binding:"required,email"`
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// loginRequest accepts either username or email.
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

func (r loginRequest) identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
}

// authData is returned by login and refresh.
type authData struct {
	User         interface{} `json:"user,omitempty"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// validateUsername returns a user-facing message, or "" when the username is acceptable.
func validateUsername(username string) string {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return "Username length must be between 3 and 30 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "Username can only contain letters, numbers, dots, underscores, and hyphens"
	}
	return ""
}

// validatePassword returns a user-facing message, or "" when the password is acceptable.
func validatePassword(password string) string {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return "Password length must be between 8 and 100 characters"
	}
	var hasLetter, hasDigit bool
	for _, char := range password {
		if unicode.IsLetter(char) {
			hasLetter = true
		}
		if unicode.IsDigit(char) {
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return ""
		}
	}
	return "Password must contain at least one letter and one digit"
}
