package handler

import (
	"net/http"
	"time"

	"account-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds the HTTP-facing settings of the account handler.
type Config struct {
	// CookieSecure marks auth cookies Secure. Only local development turns it off.
	CookieSecure bool
	CookieDomain string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	// UploadTempDir receives multipart files until they are pushed to the media host.
	UploadTempDir  string
	MaxUploadBytes int64
}

// AccountHandler serves the /api/v1/users routes.
type AccountHandler struct {
	svc     service.AccountService
	limiter RateLimiter
	cfg     Config
	logger  *zap.Logger
}

// NewAccountHandler creates the handler. limiter may be nil to disable rate limiting.
func NewAccountHandler(svc service.AccountService, limiter RateLimiter, cfg Config, logger *zap.Logger) *AccountHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	return &AccountHandler{
		svc:     svc,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("AccountHandler"),
	}
}

func (h *AccountHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", healthCheck)
	router.HEAD("/health", healthCheck)

	users := router.Group("/api/v1/users")
	users.Use(h.clientIPMiddleware())
	{
		users.POST("/register", h.rateLimit("register"), h.register)
		users.POST("/login", h.rateLimit("login"), h.login)
		users.POST("/refresh-token", h.rateLimit("refresh"), h.refreshToken)
	}

	secured := users.Group("")
	secured.Use(h.AuthMiddleware())
	{
		secured.POST("/logout", h.logout)
		secured.POST("/change-password", h.changePassword)
		secured.GET("/current-user", h.getCurrentUser)
		secured.PATCH("/update-account", h.updateAccount)
		secured.PATCH("/avatar", h.updateAvatar)
		secured.PATCH("/cover-image", h.updateCoverImage)
	}
}

func healthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}
