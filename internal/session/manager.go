package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"account-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultStoreTimeout = 3 * time.Second
	maxIssueAttempts    = 3
)

// Config carries token lifetimes and signing secrets.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// StoreTimeout bounds every PrincipalStore call. Zero means 3s.
	StoreTimeout time.Duration
}

// Validate checks the invariants the Manager depends on.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("session: access and refresh secrets are required")
	}
	if c.AccessTTL <= 0 {
		return errors.New("session: access token lifetime must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("session: refresh token lifetime (%s) must be longer than access token lifetime (%s)", c.RefreshTTL, c.AccessTTL)
	}
	if c.StoreTimeout < 0 {
		return errors.New("session: store timeout must not be negative")
	}
	return nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager issues, verifies, rotates and revokes token pairs.
type Manager struct {
	store   PrincipalStore
	cfg     Config
	access  TokenCodec
	refresh TokenCodec
	now     func() time.Time
	logger  *zap.Logger
}

// NewManager validates cfg and builds a Manager on top of store.
func NewManager(store PrincipalStore, cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: principal store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("SessionManager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.access = NewJWTCodec(cfg.AccessSecret, cfg.Issuer, TokenTypeAccess, m.now)
	m.refresh = NewJWTCodec(cfg.RefreshSecret, cfg.Issuer, TokenTypeRefresh, m.now)
	return m, nil
}

// Issue starts a new session for principalID, replacing any previous one.
func (m *Manager) Issue(ctx context.Context, principalID uuid.UUID) (*models.TokenPair, error) {
	log := m.logger.With(zap.String("principalID", principalID.String()))

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		p, err := m.getPrincipal(ctx, principalID)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				log.Warn("Issue for unknown principal")
			}
			return nil, err
		}

		pair, refreshDigest, err := m.mintPair(principalID)
		if err != nil {
			log.Error("Failed to sign token pair", zap.Error(err))
			return nil, err
		}

		swapped, err := m.compareAndSet(ctx, principalID, p.CurrentRefreshToken, refreshDigest)
		if err != nil {
			log.Error("Failed to persist refresh token", zap.Error(err))
			return nil, err
		}
		if swapped {
			log.Info("Session issued")
			return pair, nil
		}
		log.Debug("Refresh token slot changed concurrently, retrying issue", zap.Int("attempt", attempt))
	}

	log.Warn("Giving up issue after concurrent updates", zap.Int("attempts", maxIssueAttempts))
	return nil, models.ErrConcurrentUpdate
}

// VerifyAccess validates an access token and returns its principal. It never touches the store.
func (m *Manager) VerifyAccess(_ context.Context, token string) (uuid.UUID, error) {
	claims, err := m.access.Verify(token)
	if err != nil {
		m.logger.Debug("Access token rejected", zap.Error(err))
		return uuid.Nil, err
	}
	return claims.PrincipalID, nil
}

// Rotate exchanges a current refresh token for a fresh pair. The presented token
// stops being valid the moment this succeeds. Callers must not retry Rotate with
// the same token after a transient failure.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := m.refresh.Verify(refreshToken)
	if err != nil {
		m.logger.Debug("Refresh token rejected", zap.Error(err))
		return nil, err
	}
	principalID := claims.PrincipalID
	log := m.logger.With(zap.String("principalID", principalID.String()))

	p, err := m.getPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Warn("Refresh token for unknown principal")
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}

	presented := digest(refreshToken)
	if !digestEqual(p.CurrentRefreshToken, presented) {
		log.Warn("Superseded or revoked refresh token presented")
		return nil, &ReuseError{PrincipalID: principalID}
	}

	pair, refreshDigest, err := m.mintPair(principalID)
	if err != nil {
		log.Error("Failed to sign token pair", zap.Error(err))
		return nil, err
	}

	swapped, err := m.compareAndSet(ctx, principalID, presented, refreshDigest)
	if err != nil {
		log.Error("Failed to persist rotated refresh token", zap.Error(err))
		return nil, err
	}
	if !swapped {
		log.Warn("Refresh token rotated concurrently by another request")
		return nil, &ReuseError{PrincipalID: principalID}
	}

	log.Info("Session rotated")
	return pair, nil
}

// Revoke ends the principal's session. Access tokens already handed out stay
// valid until they expire.
func (m *Manager) Revoke(ctx context.Context, principalID uuid.UUID) error {
	log := m.logger.With(zap.String("principalID", principalID.String()))

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	found, err := m.store.ClearRefreshToken(sctx, principalID)
	if err != nil {
		log.Error("Failed to clear refresh token", zap.Error(err))
		return mapStoreError("clear refresh token", err)
	}
	if !found {
		log.Warn("Revoke for unknown principal")
		return models.ErrUserNotFound
	}
	log.Info("Session revoked")
	return nil
}

func (m *Manager) getPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	p, err := m.store.GetPrincipal(sctx, id)
	if err != nil {
		return nil, mapStoreError("get principal", err)
	}
	return p, nil
}

func (m *Manager) compareAndSet(ctx context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	swapped, err := m.store.CompareAndSetRefreshToken(sctx, id, expectedOld, newValue)
	if err != nil {
		return false, mapStoreError("compare-and-set refresh token", err)
	}
	return swapped, nil
}

// mintPair signs a new pair and returns it with the digest of its refresh token.
func (m *Manager) mintPair(principalID uuid.UUID) (*models.TokenPair, string, error) {
	now := m.now()

	accessToken, err := m.access.Sign(Claims{
		PrincipalID: principalID,
		Type:        TokenTypeAccess,
		ID:          uuid.NewString(),
		IssuedAt:    now,
	}, m.cfg.AccessTTL)
	if err != nil {
		return nil, "", err
	}

	refreshToken, err := m.refresh.Sign(Claims{
		PrincipalID: principalID,
		Type:        TokenTypeRefresh,
		ID:          uuid.NewString(),
		IssuedAt:    now,
	}, m.cfg.RefreshTTL)
	if err != nil {
		return nil, "", err
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(m.cfg.AccessTTL).Unix(),
		RefreshExpiresAt: now.Add(m.cfg.RefreshTTL).Unix(),
	}, digest(refreshToken), nil
}

// digest is what stores keep instead of the refresh token itself.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func digestEqual(current, presented string) bool {
	if current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(presented)) == 1
}
