package handler

import (
	"strings"

	"account-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userIDKey = "user_id"
	userKey   = "user"
)

// clientIPMiddleware records the caller IP for security events.
func (h *AccountHandler) clientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(models.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// AuthMiddleware accepts the access token from the accessToken cookie or an
// Authorization: Bearer header.
func (h *AccountHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessTokenFromRequest(c)
		if token == "" {
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			handleServiceError(c, models.ErrUnauthorized)
			return
		}

		user, err := h.svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.logger.Debug("Access token verification failed", zap.Error(err))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			handleServiceError(c, err)
			return
		}

		tokenVerificationsTotal.WithLabelValues("success").Inc()
		c.Set(userIDKey, user.ID)
		c.Set(userKey, user)
		c.Request = c.Request.WithContext(models.WithUserID(c.Request.Context(), user.ID))
		c.Next()
	}
}

func accessTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}
