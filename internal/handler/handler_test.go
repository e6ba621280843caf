package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"account-server/internal/service"
	"account-server/shared/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAccountService struct {
	user *models.User
	pair *models.TokenPair

	registerFn func(in service.RegisterInput) (*models.User, error)
	loginErr   error
	refreshErr error
	authErr    error
	updateErr  error

	gotLoginIdentifier string
	gotRefreshToken    string
	loggedOut          []uuid.UUID
	passwordChanged    bool
	gotImagePath       string
}

var _ service.AccountService = (*fakeAccountService)(nil)

func newFakeAccountService() *fakeAccountService {
	return &fakeAccountService{
		user: &models.User{ID: uuid.New(), Username: "ada", Email: "ada@example.com", FullName: "Ada", PasswordHash: "secret-hash"},
		pair: &models.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"},
	}
}

func (f *fakeAccountService) Register(_ context.Context, in service.RegisterInput) (*models.User, error) {
	if f.registerFn != nil {
		return f.registerFn(in)
	}
	return f.user, nil
}

func (f *fakeAccountService) Login(_ context.Context, identifier, _ string) (*models.User, *models.TokenPair, error) {
	f.gotLoginIdentifier = identifier
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	return f.user, f.pair, nil
}

func (f *fakeAccountService) Logout(_ context.Context, userID uuid.UUID) error {
	f.loggedOut = append(f.loggedOut, userID)
	return nil
}

func (f *fakeAccountService) Refresh(_ context.Context, token string) (*models.TokenPair, error) {
	f.gotRefreshToken = token
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAccountService) Authenticate(_ context.Context, token string) (*models.User, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	if token != f.pair.AccessToken {
		return nil, models.ErrTokenInvalid
	}
	return f.user, nil
}

func (f *fakeAccountService) ChangePassword(_ context.Context, _ uuid.UUID, current, _ string) error {
	if current != "old-password-1" {
		return models.ErrInvalidCredentials
	}
	f.passwordChanged = true
	return nil
}

func (f *fakeAccountService) GetCurrentUser(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return f.user, nil
}

func (f *fakeAccountService) UpdateAccountDetails(_ context.Context, _ uuid.UUID, fullName, email string) (*models.User, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u := *f.user
	u.FullName, u.Email = fullName, email
	return &u, nil
}

func (f *fakeAccountService) UpdateAvatar(_ context.Context, _ uuid.UUID, path string) (*models.User, error) {
	f.gotImagePath = path
	return f.user, nil
}

func (f *fakeAccountService) UpdateCoverImage(_ context.Context, _ uuid.UUID, path string) (*models.User, error) {
	f.gotImagePath = path
	return f.user, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, svc service.AccountService, limiter RateLimiter) *gin.Engine {
	t.Helper()
	h := NewAccountHandler(svc, limiter, Config{
		CookieSecure:  true,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		UploadTempDir: t.TempDir(),
	}, zap.NewNop())
	router := gin.New()
	h.RegisterRoutes(router)
	return router
}

func doJSON(router http.Handler, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleServiceError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{models.ErrInvalidCredentials, http.StatusUnauthorized, models.ErrCodeWrongCredentials},
		{models.ErrUserAlreadyExists, http.StatusConflict, models.ErrCodeDuplicateUser},
		{models.ErrEmailAlreadyExists, http.StatusConflict, models.ErrCodeDuplicateEmail},
		{models.ErrUserNotFound, http.StatusNotFound, models.ErrCodeUserNotFound},
		{fmt.Errorf("principal x: %w", models.ErrTokenReused), http.StatusUnauthorized, models.ErrCodeTokenReused},
		{models.ErrTokenExpired, http.StatusUnauthorized, models.ErrCodeTokenExpired},
		{fmt.Errorf("%w: bad signature", models.ErrTokenInvalid), http.StatusUnauthorized, models.ErrCodeTokenInvalid},
		{models.ErrUnauthorized, http.StatusUnauthorized, models.ErrCodeTokenInvalid},
		{fmt.Errorf("get principal: %w: timeout", models.ErrStoreUnavailable), http.StatusServiceUnavailable, models.ErrCodeStoreUnavailable},
		{models.ErrConcurrentUpdate, http.StatusConflict, models.ErrCodeConcurrentUpdate},
		{models.ErrMediaMissing, http.StatusBadRequest, models.ErrCodeMediaMissing},
		{fmt.Errorf("%w: boom", models.ErrMediaUpload), http.StatusBadGateway, models.ErrCodeMediaUpload},
		{fmt.Errorf("%w: invalid email format", models.ErrInvalidInput), http.StatusBadRequest, models.ErrCodeValidation},
		{models.ErrRateLimited, http.StatusTooManyRequests, models.ErrCodeRateLimited},
		{errors.New("something odd"), http.StatusInternalServerError, models.ErrCodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			handleServiceError(c, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.False(t, resp.Success)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestLogin_SetsCookiesAndEnvelope(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"email": "ada@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ada@example.com", svc.gotLoginIdentifier)

	access := cookieByName(rec, accessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-1", access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	refresh := cookieByName(rec, refreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-1", refresh.Value)
	assert.Equal(t, int((24 * time.Hour).Seconds()), refresh.MaxAge)

	var body struct {
		StatusCode int  `json:"statusCode"`
		Success    bool `json:"success"`
		Data       struct {
			User         map[string]interface{} `json:"user"`
			AccessToken  string                 `json:"accessToken"`
			RefreshToken string                 `json:"refreshToken"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, http.StatusOK, body.StatusCode)
	assert.Equal(t, "access-1", body.Data.AccessToken)
	assert.Equal(t, "ada", body.Data.User["username"])
	assert.NotContains(t, rec.Body.String(), "secret-hash", "password hash never leaves the server")
}

func TestLogin_Failures(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"password": "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.loginErr = models.ErrInvalidCredentials
	rec = doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"username": "ada", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, cookieByName(rec, accessTokenCookie))
}

func TestRefreshToken(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", nil,
		&http.Cookie{Name: refreshTokenCookie, Value: "from-cookie"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-cookie", svc.gotRefreshToken)
	assert.Equal(t, "refresh-2", cookieByName(rec, refreshTokenCookie).Value)

	rec = doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", gin.H{"refreshToken": "from-body"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-body", svc.gotRefreshToken)

	rec = doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.refreshErr = fmt.Errorf("principal: %w", models.ErrTokenReused)
	rec = doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", gin.H{"refreshToken": "stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.ErrCodeTokenReused, decodeError(t, rec).Code)
	cleared := cookieByName(rec, refreshTokenCookie)
	require.NotNil(t, cleared, "reuse clears cookies")
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	svc.refreshErr = models.ErrStoreUnavailable
	rec = doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", gin.H{"refreshToken": "any"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, cookieByName(rec, refreshTokenCookie), "transient failures keep cookies")
}

func TestAuthMiddleware(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	rec := doJSON(router, http.MethodGet, "/api/v1/users/current-user", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/v1/users/current-user", nil,
		&http.Cookie{Name: accessTokenCookie, Value: "access-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer access-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.authErr = models.ErrTokenExpired
	rec = doJSON(router, http.MethodGet, "/api/v1/users/current-user", nil,
		&http.Cookie{Name: accessTokenCookie, Value: "access-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.ErrCodeTokenExpired, decodeError(t, rec).Code)
}

func TestLogout_ClearsCookies(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	rec := doJSON(router, http.MethodPost, "/api/v1/users/logout", nil,
		&http.Cookie{Name: accessTokenCookie, Value: "access-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{svc.user.ID}, svc.loggedOut)
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		c := cookieByName(rec, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)
	auth := &http.Cookie{Name: accessTokenCookie, Value: "access-1"}

	rec := doJSON(router, http.MethodPost, "/api/v1/users/change-password", gin.H{"oldPassword": "old-password-1", "newPassword": "short"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/v1/users/change-password", gin.H{"oldPassword": "nope", "newPassword": "new-password-1"}, auth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/v1/users/change-password", gin.H{"oldPassword": "old-password-1", "newPassword": "new-password-1"}, auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.passwordChanged)
}

func TestUpdateAccount(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)
	auth := &http.Cookie{Name: accessTokenCookie, Value: "access-1"}

	rec := doJSON(router, http.MethodPatch, "/api/v1/users/update-account", gin.H{"fullName": "Ada L", "email": "not-an-email"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPatch, "/api/v1/users/update-account", gin.H{"fullName": "Ada L", "email": "ada.l@example.com"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada.l@example.com")

	svc.updateErr = models.ErrEmailAlreadyExists
	rec = doJSON(router, http.MethodPatch, "/api/v1/users/update-account", gin.H{"fullName": "Ada L", "email": "taken@example.com"}, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, filename := range files {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRegister(t *testing.T) {
	svc := newFakeAccountService()
	var got service.RegisterInput
	svc.registerFn = func(in service.RegisterInput) (*models.User, error) {
		got = in
		_, err := os.Stat(in.AvatarPath)
		require.NoError(t, err, "avatar is saved before the service runs")
		return svc.user, nil
	}
	router := newTestRouter(t, svc, nil)
	fields := map[string]string{
		"fullName": "Ada Lovelace",
		"email":    "ada@example.com",
		"username": "ada",
		"password": "password123",
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/users/register", fields,
		map[string]string{"avatar": "me.png", "coverImage": "cover.jpg"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasSuffix(got.AvatarPath, ".png"))
	assert.True(t, strings.HasSuffix(got.CoverImagePath, ".jpg"))
	assert.Equal(t, "ada", got.Username)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/users/register", fields, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrCodeMediaMissing, decodeError(t, rec).Code)

	bad := map[string]string{"fullName": "x", "email": "x@example.com", "username": "a b", "password": "password123"}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/users/register", bad, map[string]string{"avatar": "me.png"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, http.MethodPost, "/api/v1/users/register", fields, map[string]string{"avatar": "script.sh"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAvatar(t *testing.T) {
	svc := newFakeAccountService()
	router := newTestRouter(t, svc, nil)

	req := multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", nil, map[string]string{"avatar": "new.webp"})
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "access-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasSuffix(svc.gotImagePath, ".webp"))

	req = multipartRequest(t, http.MethodPatch, "/api/v1/users/cover-image", nil, nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "access-1"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrCodeMediaMissing, decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, newFakeAccountService(), nil)
	rec := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRedisRateLimiter(client, 2, time.Minute)
	router := newTestRouter(t, newFakeAccountService(), limiter)

	for i := 0; i < 2; i++ {
		rec := doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"username": "ada", "password": "pw"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"username": "ada", "password": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, models.ErrCodeRateLimited, decodeError(t, rec).Code)

	rec = doJSON(router, http.MethodPost, "/api/v1/users/refresh-token", gin.H{"refreshToken": "r"})
	assert.Equal(t, http.StatusOK, rec.Code, "routes are limited independently")

	mr.FastForward(time.Minute + time.Second)
	rec = doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"username": "ada", "password": "pw"})
	assert.Equal(t, http.StatusOK, rec.Code, "window resets")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	limiter := NewRedisRateLimiter(client, 1, time.Minute)
	router := newTestRouter(t, newFakeAccountService(), limiter)

	mr.Close()
	rec := doJSON(router, http.MethodPost, "/api/v1/users/login", gin.H{"username": "ada", "password": "pw"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_PropagatesUser(t *testing.T) {
	svc := newFakeAccountService()
	h := NewAccountHandler(svc, nil, Config{}, zap.NewNop())
	router := gin.New()

	var ctxUserID uuid.UUID
	router.GET("/probe", h.AuthMiddleware(), func(c *gin.Context) {
		ctxUserID, _ = models.GetUserIDFromContext(c.Request.Context())
		id, ok := currentUserID(c)
		require.True(t, ok)
		assert.Equal(t, svc.user.ID, id)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "bearer access-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, svc.user.ID, ctxUserID)
}
