package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"account-server/internal/service"
	"account-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *AccountHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		abortBadRequest(c, "Invalid request data: "+err.Error())
		return
	}
	if msg := validateUsername(req.Username); msg != "" {
		abortBadRequest(c, msg)
		return
	}
	if msg := validatePassword(req.Password); msg != "" {
		abortBadRequest(c, msg)
		return
	}

	avatarPath, err := h.saveUpload(c, "avatar")
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if avatarPath == "" {
		handleServiceError(c, fmt.Errorf("%w: avatar file is required", models.ErrMediaMissing))
		return
	}
	coverPath, err := h.saveUpload(c, "coverImage")
	if err != nil {
		removeQuietly(avatarPath)
		handleServiceError(c, err)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Username:       req.Username,
		Password:       req.Password,
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	registrationsTotal.Inc()
	c.JSON(http.StatusCreated, models.NewAPIResponse(http.StatusCreated, user, "User registered successfully"))
}

func (h *AccountHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.identifier() == "" {
		abortBadRequest(c, "username or email is required")
		return
	}

	user, pair, err := h.svc.Login(c.Request.Context(), req.identifier(), req.Password)
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		handleServiceError(c, err)
		return
	}

	loginsTotal.WithLabelValues("success").Inc()
	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, authData{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "User logged in successfully"))
}

// refreshToken takes the refresh token from its cookie, falling back to the JSON body.
func (h *AccountHandler) refreshToken(c *gin.Context) {
	token, _ := c.Cookie(refreshTokenCookie)
	if token == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abortBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		refreshesTotal.WithLabelValues("failure").Inc()
		handleServiceError(c, models.ErrUnauthorized)
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		refreshesTotal.WithLabelValues("failure").Inc()
		if errors.Is(err, models.ErrTokenReused) {
			h.clearAuthCookies(c)
		}
		handleServiceError(c, err)
		return
	}

	refreshesTotal.WithLabelValues("success").Inc()
	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, authData{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "Access token refreshed"))
}

func (h *AccountHandler) logout(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), userID); err != nil {
		handleServiceError(c, err)
		return
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, gin.H{}, "User logged out"))
}

func (h *AccountHandler) changePassword(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if msg := validatePassword(req.NewPassword); msg != "" {
		abortBadRequest(c, msg)
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		handleServiceError(c, err)
		return
	}
	// The session ends with the password change.
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, gin.H{}, "Password changed successfully"))
}

func (h *AccountHandler) getCurrentUser(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	user, err := h.svc.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, user, "User fetched successfully"))
}

func (h *AccountHandler) updateAccount(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.svc.UpdateAccountDetails(c.Request.Context(), userID, req.FullName, req.Email)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, user, "Account details updated successfully"))
}

func (h *AccountHandler) updateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", h.svc.UpdateAvatar, "Avatar image updated successfully")
}

func (h *AccountHandler) updateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", h.svc.UpdateCoverImage, "Cover image updated successfully")
}

type imageUpdater func(ctx context.Context, userID uuid.UUID, localPath string) (*models.User, error)

func (h *AccountHandler) updateImage(c *gin.Context, field string, update imageUpdater, message string) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	path, err := h.saveUpload(c, field)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if path == "" {
		handleServiceError(c, fmt.Errorf("%w: %s file is missing", models.ErrMediaMissing, field))
		return
	}

	user, err := update(c.Request.Context(), userID, path)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewAPIResponse(http.StatusOK, user, message))
}

func (h *AccountHandler) requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		h.logger.Error("User ID missing in context", zap.String("path", c.FullPath()))
		handleServiceError(c, models.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
