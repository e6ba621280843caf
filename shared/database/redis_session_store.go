package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account-server/internal/session"
	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultSessionKeyPrefix = "session:refresh:"

// KEYS[1] refresh slot key
// ARGV[1] expected digest ("" means no session)
// ARGV[2] new digest ("" clears the slot)
// ARGV[3] slot TTL in milliseconds
const compareAndSetRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  current = ""
end
if current ~= ARGV[1] then
  return 0
end
if ARGV[2] == "" then
  redis.call("DEL", KEYS[1])
else
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`

var compareAndSetRefreshLua = redis.NewScript(compareAndSetRefreshScript)

var _ session.PrincipalStore = (*RedisSessionStore)(nil)

// RedisSessionStore keeps the refresh token slot of each principal in Redis.
// Principals themselves (identity and credential hash) come from the user repository.
// A slot expires together with the refresh token it holds.
type RedisSessionStore struct {
	client redis.UniversalClient
	users  interfaces.UserRepository
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewRedisSessionStore creates a Redis-backed session.PrincipalStore. ttl should equal
// the refresh token lifetime.
func NewRedisSessionStore(client redis.UniversalClient, users interfaces.UserRepository, ttl time.Duration, logger *zap.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		users:  users,
		ttl:    ttl,
		prefix: defaultSessionKeyPrefix,
		logger: logger.Named("RedisSessionStore"),
	}
}

func (s *RedisSessionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// GetPrincipal combines the stored user with the refresh slot held in Redis.
func (s *RedisSessionStore) GetPrincipal(ctx context.Context, id uuid.UUID) (*session.Principal, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	current, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Error("Failed to read refresh slot from redis", zap.Error(err), zap.String("userID", id.String()))
		return nil, fmt.Errorf("failed to read refresh slot from redis: %w", err)
	}

	return &session.Principal{
		ID:                  user.ID,
		CredentialHash:      user.PasswordHash,
		CurrentRefreshToken: current,
	}, nil
}

// CompareAndSetRefreshToken runs the swap as a single Lua script, so concurrent callers
// presenting the same expected value cannot both win.
func (s *RedisSessionStore) CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error) {
	if exists, err := s.principalExists(ctx, id); err != nil || !exists {
		return false, err
	}

	res, err := compareAndSetRefreshLua.Run(ctx, s.client, []string{s.key(id)},
		expectedOld, newValue, s.ttl.Milliseconds()).Int()
	if err != nil {
		s.logger.Error("Failed to run refresh compare-and-set script", zap.Error(err), zap.String("userID", id.String()))
		return false, fmt.Errorf("failed to compare-and-set refresh slot in redis: %w", err)
	}
	if res != 1 {
		s.logger.Debug("Refresh token compare-and-set lost", zap.String("userID", id.String()))
	}
	return res == 1, nil
}

// ClearRefreshToken deletes the refresh slot.
func (s *RedisSessionStore) ClearRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	if exists, err := s.principalExists(ctx, id); err != nil || !exists {
		return false, err
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		s.logger.Error("Failed to delete refresh slot from redis", zap.Error(err), zap.String("userID", id.String()))
		return false, fmt.Errorf("failed to delete refresh slot from redis: %w", err)
	}
	return true, nil
}

func (s *RedisSessionStore) principalExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.users.GetUserByID(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}
