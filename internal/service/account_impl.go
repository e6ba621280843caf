package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"account-server/internal/session"
	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes AccountService behavior.
type Config struct {
	// RevokeOnReuse ends the principal's session when a superseded refresh token shows up.
	RevokeOnReuse bool
}

var _ AccountService = (*accountServiceImpl)(nil)

type accountServiceImpl struct {
	users    interfaces.UserRepository
	sessions SessionManager
	verifier CredentialVerifier
	uploader interfaces.MediaUploader
	events   interfaces.SecurityEventPublisher
	cfg      Config
	logger   *zap.Logger
}

// NewAccountService wires the account service.
func NewAccountService(
	users interfaces.UserRepository,
	sessions SessionManager,
	verifier CredentialVerifier,
	uploader interfaces.MediaUploader,
	events interfaces.SecurityEventPublisher,
	cfg Config,
	logger *zap.Logger,
) AccountService {
	return &accountServiceImpl{
		users:    users,
		sessions: sessions,
		verifier: verifier,
		uploader: uploader,
		events:   events,
		cfg:      cfg,
		logger:   logger.Named("AccountService"),
	}
}

// Register creates a user. Uniqueness is left to the repository, so duplicates surface
// as models.ErrUserAlreadyExists or models.ErrEmailAlreadyExists.
func (s *accountServiceImpl) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	defer s.removeTemp(in.AvatarPath)
	defer s.removeTemp(in.CoverImagePath)

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))

	logFields := []zap.Field{zap.String("username", in.Username), zap.String("email", in.Email)}
	s.logger.Info("Registering new user", logFields...)

	if in.FullName == "" || in.Email == "" || in.Username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", models.ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		s.logger.Warn("Registration attempt with invalid email format", logFields...)
		return nil, err
	}
	if in.AvatarPath == "" {
		return nil, fmt.Errorf("%w: avatar file is required", models.ErrMediaMissing)
	}

	avatar, err := s.uploader.Upload(ctx, in.AvatarPath)
	if err != nil {
		s.logger.Error("Failed to upload avatar", append(logFields, zap.Error(err))...)
		return nil, err
	}
	var coverImage string
	if in.CoverImagePath != "" {
		cover, err := s.uploader.Upload(ctx, in.CoverImagePath)
		if err != nil {
			s.logger.Error("Failed to upload cover image", append(logFields, zap.Error(err))...)
			return nil, err
		}
		coverImage = cover.URL
	}

	hash, err := s.verifier.Hash(in.Password)
	if err != nil {
		s.logger.Error("Failed to hash password during registration", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       avatar.URL,
		CoverImage:   coverImage,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, models.ErrUserAlreadyExists) && !errors.Is(err, models.ErrEmailAlreadyExists) {
			s.logger.Error("Failed to create user via repository", append(logFields, zap.Error(err))...)
		}
		return nil, err
	}

	s.logger.Info("User registered successfully", zap.String("userID", user.ID.String()))
	return user, nil
}

// Login accepts either a username or an email as identifier.
func (s *accountServiceImpl) Login(ctx context.Context, identifier, password string) (*models.User, *models.TokenPair, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return nil, nil, fmt.Errorf("%w: username or email and password are required", models.ErrInvalidInput)
	}
	log := s.logger.With(zap.String("identifier", identifier))

	user, err := s.users.GetUserByUsernameOrEmail(ctx, identifier, identifier)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Warn("Login attempt for non-existent user")
			return nil, nil, models.ErrInvalidCredentials
		}
		log.Error("Error retrieving user during login", zap.Error(err))
		return nil, nil, fmt.Errorf("error retrieving user: %w", err)
	}

	if !s.verifier.Verify(password, user.PasswordHash) {
		log.Warn("Invalid password attempt", zap.String("userID", user.ID.String()))
		return nil, nil, models.ErrInvalidCredentials
	}

	pair, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		log.Error("Failed to issue session", zap.String("userID", user.ID.String()), zap.Error(err))
		return nil, nil, err
	}

	log.Info("User logged in successfully", zap.String("userID", user.ID.String()))
	return user, pair, nil
}

func (s *accountServiceImpl) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.Revoke(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("User logged out", zap.String("userID", userID.String()))
	return nil
}

// Refresh rotates the session. A reused token is reported as a security event and,
// with RevokeOnReuse, also ends the session of whoever holds the current token.
func (s *accountServiceImpl) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", models.ErrTokenInvalid)
	}

	pair, err := s.sessions.Rotate(ctx, refreshToken)
	if err == nil {
		return pair, nil
	}

	var reuse *session.ReuseError
	if !errors.As(err, &reuse) {
		return nil, err
	}

	log := s.logger.With(zap.String("userID", reuse.PrincipalID.String()))
	log.Warn("Refresh token reuse detected", zap.Bool("revoke", s.cfg.RevokeOnReuse))
	s.publish(ctx, models.SecurityEventRefreshTokenReused, reuse.PrincipalID, "superseded refresh token presented")

	if s.cfg.RevokeOnReuse {
		if rerr := s.sessions.Revoke(ctx, reuse.PrincipalID); rerr != nil {
			log.Error("Failed to revoke session after refresh token reuse", zap.Error(rerr))
		} else {
			s.publish(ctx, models.SecurityEventSessionRevoked, reuse.PrincipalID, "refresh token reuse")
		}
	}
	return nil, err
}

// Authenticate resolves an access token to its user. A token whose user no longer
// exists is invalid.
func (s *accountServiceImpl) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	userID, err := s.sessions.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", models.ErrTokenInvalid)
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword also ends the current session.
func (s *accountServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	log := s.logger.With(zap.String("userID", userID.String()))
	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: old and new password are required", models.ErrInvalidInput)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.verifier.Verify(currentPassword, user.PasswordHash) {
		log.Warn("Password change with invalid current password")
		return models.ErrInvalidCredentials
	}

	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		log.Error("Failed to hash new password", zap.Error(err))
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, userID); err != nil {
		log.Error("Password changed but session revoke failed", zap.Error(err))
		return err
	}

	s.publish(ctx, models.SecurityEventPasswordChanged, userID, "")
	log.Info("Password changed")
	return nil
}

func (s *accountServiceImpl) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *accountServiceImpl) UpdateAccountDetails(ctx context.Context, userID uuid.UUID, fullName, email string) (*models.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%w: full name and email are required", models.ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUserFields(ctx, userID, models.UserUpdate{FullName: &fullName, Email: &email})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Account details updated", zap.String("userID", userID.String()))
	return user, nil
}

func (s *accountServiceImpl) UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error) {
	return s.replaceImage(ctx, userID, localPath, "avatar", func(url string) models.UserUpdate {
		return models.UserUpdate{Avatar: &url}
	})
}

func (s *accountServiceImpl) UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error) {
	return s.replaceImage(ctx, userID, localPath, "cover image", func(url string) models.UserUpdate {
		return models.UserUpdate{CoverImage: &url}
	})
}

func (s *accountServiceImpl) replaceImage(ctx context.Context, userID uuid.UUID, localPath, kind string, update func(url string) models.UserUpdate) (*models.User, error) {
	defer s.removeTemp(localPath)
	log := s.logger.With(zap.String("userID", userID.String()), zap.String("kind", kind))

	if localPath == "" {
		return nil, fmt.Errorf("%w: %s file is missing", models.ErrMediaMissing, kind)
	}
	uploaded, err := s.uploader.Upload(ctx, localPath)
	if err != nil {
		log.Error("Failed to upload image", zap.Error(err))
		return nil, err
	}

	user, err := s.users.UpdateUserFields(ctx, userID, update(uploaded.URL))
	if err != nil {
		return nil, err
	}
	log.Info("Image updated")
	return user, nil
}

// publish never fails the caller; a lost event is logged.
func (s *accountServiceImpl) publish(ctx context.Context, typ models.SecurityEventType, userID uuid.UUID, detail string) {
	if s.events == nil {
		return
	}
	clientIP := models.ClientIPFromContext(ctx)
	event := models.SecurityEvent{
		Type:       typ,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		ClientIP:   clientIP,
		Detail:     detail,
	}
	if err := s.events.PublishSecurityEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish security event", zap.String("type", string(typ)), zap.String("userID", userID.String()), zap.Error(err))
	}
}

// removeTemp deletes an uploaded temp file whatever the outcome of the request.
func (s *accountServiceImpl) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email format", models.ErrInvalidInput)
	}
	return nil
}
