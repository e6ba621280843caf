package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"account-server/internal/session"
	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	uniqueViolation         = "23505"
	usernameUniqueIndexName = "users_username_key"
	emailUniqueIndexName    = "users_email_key"
)

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash,
	COALESCE(refresh_token_hash, ''), refresh_token_issued_at, created_at, updated_at`

// Compile-time checks: the same repository serves the account service and the session manager.
var (
	_ interfaces.UserRepository = (*PgUserRepository)(nil)
	_ session.PrincipalStore    = (*PgUserRepository)(nil)
)

// PgUserRepository stores users, including their refresh token slot, in PostgreSQL.
type PgUserRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(db interfaces.DBTX, logger *zap.Logger) *PgUserRepository {
	return &PgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage, &u.PasswordHash,
		&u.RefreshTokenHash, &u.RefreshTokenIssuedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// duplicateError translates a unique index violation into the matching duplicate
// error. It returns nil for any other error.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailUniqueIndexName:
		return models.ErrEmailAlreadyExists
	case usernameUniqueIndexName:
		return models.ErrUserAlreadyExists
	default:
		return fmt.Errorf("%w: %s", models.ErrUserAlreadyExists, pgErr.ConstraintName)
	}
}

// CreateUser inserts a new user into the database.
func (r *PgUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, email, full_name, avatar, cover_image, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	logFields := []zap.Field{zap.String("username", user.Username), zap.String("email", user.Email)}
	r.logger.Debug("Creating user", logFields...)

	err := r.db.QueryRow(ctx, query, user.Username, user.Email, user.FullName, user.Avatar, user.CoverImage, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dupErr := duplicateError(err); dupErr != nil {
			r.logger.Warn("Attempted to create duplicate user", append(logFields, zap.Error(dupErr))...)
			return dupErr
		}
		r.logger.Error("Failed to create user in postgres", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create user in postgres: %w", err)
	}
	r.logger.Info("User created successfully", zap.String("userID", user.ID.String()), zap.String("username", user.Username))
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *PgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("User not found by ID", zap.String("id", id.String()))
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by id from postgres", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get user by id from postgres: %w", err)
	}
	return user, nil
}

// GetUserByUsernameOrEmail retrieves the user whose username or email matches.
func (r *PgUserRepository) GetUserByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $2 LIMIT 1`
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(r.db.QueryRow(ctx, query, username, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("User not found by username or email", zap.String("username", username), zap.String("email", email))
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by username or email", zap.Error(err))
		return nil, fmt.Errorf("failed to get user by username or email from postgres: %w", err)
	}
	return user, nil
}

// UpdateUserFields updates the non-nil fields of upd and returns the stored user.
func (r *PgUserRepository) UpdateUserFields(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error) {
	queryBase := "UPDATE users SET updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argID := 1

	set := func(column string, value *string) {
		if value == nil {
			return
		}
		queryBase += fmt.Sprintf(", %s = $%d", column, argID)
		args = append(args, *value)
		argID++
	}
	set("full_name", upd.FullName)
	set("email", upd.Email)
	set("avatar", upd.Avatar)
	set("cover_image", upd.CoverImage)

	if len(args) == 0 {
		r.logger.Info("UpdateUserFields called with no fields to update", zap.String("userID", id.String()))
		return r.GetUserByID(ctx, id)
	}

	query := queryBase + fmt.Sprintf(" WHERE id = $%d RETURNING %s", argID, userColumns)
	args = append(args, id)

	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Attempted to update non-existent user", zap.String("userID", id.String()))
			return nil, models.ErrUserNotFound
		}
		if dupErr := duplicateError(err); dupErr != nil {
			r.logger.Warn("Attempted to update user with duplicate email", zap.String("userID", id.String()))
			return nil, dupErr
		}
		r.logger.Error("Failed to update user fields in postgres", zap.Error(err), zap.String("userID", id.String()))
		return nil, fmt.Errorf("failed to update user fields: %w", err)
	}

	r.logger.Info("User fields updated successfully", zap.String("userID", id.String()))
	return user, nil
}

// UpdatePasswordHash replaces the user's password hash.
func (r *PgUserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, query, passwordHash, id)
	if err != nil {
		r.logger.Error("Failed to update password hash in postgres", zap.Error(err), zap.String("userID", id.String()))
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update password for non-existent user", zap.String("userID", id.String()))
		return models.ErrUserNotFound
	}
	r.logger.Info("Password hash updated successfully", zap.String("userID", id.String()))
	return nil
}

// GetPrincipal loads the session view of a user.
func (r *PgUserRepository) GetPrincipal(ctx context.Context, id uuid.UUID) (*session.Principal, error) {
	query := `SELECT id, password_hash, COALESCE(refresh_token_hash, ''), refresh_token_issued_at FROM users WHERE id = $1`
	p := &session.Principal{}
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.CredentialHash, &p.CurrentRefreshToken, &p.RefreshTokenIssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get principal from postgres", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get principal from postgres: %w", err)
	}
	return p, nil
}

// CompareAndSetRefreshToken swaps the refresh token digest in a single conditional UPDATE.
// An empty value is stored as NULL, so "" matches a principal without a session.
func (r *PgUserRepository) CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error) {
	query := `UPDATE users
		SET refresh_token_hash = NULLIF($3, ''),
			refresh_token_issued_at = CASE WHEN $3 = '' THEN NULL ELSE CURRENT_TIMESTAMP END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND refresh_token_hash IS NOT DISTINCT FROM NULLIF($2, '')`
	cmdTag, err := r.db.Exec(ctx, query, id, expectedOld, newValue)
	if err != nil {
		r.logger.Error("Failed to compare-and-set refresh token", zap.Error(err), zap.String("userID", id.String()))
		return false, fmt.Errorf("failed to compare-and-set refresh token: %w", err)
	}
	swapped := cmdTag.RowsAffected() == 1
	if !swapped {
		r.logger.Debug("Refresh token compare-and-set lost", zap.String("userID", id.String()))
	}
	return swapped, nil
}

// ClearRefreshToken removes the refresh token digest unconditionally.
func (r *PgUserRepository) ClearRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE users SET refresh_token_hash = NULL, refresh_token_issued_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	cmdTag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to clear refresh token", zap.Error(err), zap.String("userID", id.String()))
		return false, fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}
