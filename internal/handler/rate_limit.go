package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"account-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter decides whether key may perform one more request.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KEYS[1] counter key
// ARGV[1] window in milliseconds
// A counter left without a TTL gets one on the next hit.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

var fixedWindowLua = redis.NewScript(fixedWindowScript)

// RedisRateLimiter is a fixed-window counter: the first hit in a window sets the
// key's TTL, and requests beyond Limit are rejected until it expires.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	prefix string
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter allows limit requests per window for each key.
func NewRedisRateLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow counts the hit and sets the window TTL in one script run.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := fixedWindowLua.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limiter script: %w", err)
	}
	return count <= l.limit, nil
}

// rateLimit limits a route per client IP. Limiter failures let the request through.
func (h *AccountHandler) rateLimit(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil {
			c.Next()
			return
		}
		allowed, err := h.limiter.Allow(c.Request.Context(), route+":"+c.ClientIP())
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				h.logger.Warn("Rate limiter unavailable, allowing request", zap.String("route", route), zap.Error(err))
			}
			c.Next()
			return
		}
		if !allowed {
			rateLimitedTotal.WithLabelValues(route).Inc()
			handleServiceError(c, models.ErrRateLimited)
			return
		}
		c.Next()
	}
}
