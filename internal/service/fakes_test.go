package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"account-server/internal/session"
	"account-server/shared/interfaces"
	"account-server/shared/models"

	"github.com/google/uuid"
)

// fakeUserRepo is both the user repository and the principal store, like the
// PostgreSQL repository in production.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

var (
	_ interfaces.UserRepository = (*fakeUserRepo)(nil)
	_ session.PrincipalStore    = (*fakeUserRepo)(nil)
)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return models.ErrUserAlreadyExists
		}
		if u.Email == user.Email {
			return models.ErrEmailAlreadyExists
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetUserByUsernameOrEmail(_ context.Context, username, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r *fakeUserRepo) UpdateUserFields(_ context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	if upd.Email != nil {
		for otherID, other := range r.users {
			if otherID != id && other.Email == *upd.Email {
				return nil, models.ErrEmailAlreadyExists
			}
		}
		u.Email = *upd.Email
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	if upd.CoverImage != nil {
		u.CoverImage = *upd.CoverImage
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

func (r *fakeUserRepo) GetPrincipal(_ context.Context, id uuid.UUID) (*session.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &session.Principal{ID: u.ID, CredentialHash: u.PasswordHash, CurrentRefreshToken: u.RefreshTokenHash}, nil
}

func (r *fakeUserRepo) CompareAndSetRefreshToken(_ context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.RefreshTokenHash != expectedOld {
		return false, nil
	}
	u.RefreshTokenHash = newValue
	return true, nil
}

func (r *fakeUserRepo) ClearRefreshToken(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, nil
	}
	u.RefreshTokenHash = ""
	return true, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	err      error
	uploaded []string
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (*interfaces.UploadedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.uploaded = append(f.uploaded, localPath)
	name := filepath.Base(localPath)
	return &interfaces.UploadedMedia{URL: "https://cdn.test/" + name, PublicID: name}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []models.SecurityEvent
}

func (f *fakePublisher) PublishSecurityEvent(_ context.Context, event models.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakePublisher) types() []models.SecurityEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SecurityEventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

var errUploadDown = errors.New("upload host down")
