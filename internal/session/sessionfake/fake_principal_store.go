// Package sessionfake provides an in-memory session.PrincipalStore for tests.
package sessionfake

import (
	"context"
	"sync"
	"time"

	"account-server/internal/session"
	"account-server/shared/models"

	"github.com/google/uuid"
)

// PrincipalStore keeps principals in a map guarded by a mutex, which makes
// CompareAndSetRefreshToken atomic.
type PrincipalStore struct {
	mu         sync.Mutex
	principals map[uuid.UUID]session.Principal

	// Err, when set, is returned by every call.
	Err error
	// CASCalls counts CompareAndSetRefreshToken invocations.
	CASCalls int
	// BeforeCAS runs inside CompareAndSetRefreshToken before the lock is taken.
	BeforeCAS func()
	// CASDelay makes CompareAndSetRefreshToken stall like a slow backend. The
	// stall ends early when ctx is done.
	CASDelay time.Duration
}

var _ session.PrincipalStore = (*PrincipalStore)(nil)

// NewPrincipalStore returns an empty store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{principals: make(map[uuid.UUID]session.Principal)}
}

// Add registers a principal without a session and returns its ID.
func (s *PrincipalStore) Add(credentialHash string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.principals[id] = session.Principal{ID: id, CredentialHash: credentialHash}
	return id
}

// Put stores p as-is.
func (s *PrincipalStore) Put(p session.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.ID] = p
}

// Current returns the stored refresh token digest for id.
func (s *PrincipalStore) Current(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principals[id].CurrentRefreshToken
}

// SetCurrent overwrites the refresh token digest, simulating a concurrent writer.
func (s *PrincipalStore) SetCurrent(id uuid.UUID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.principals[id]
	p.CurrentRefreshToken = value
	s.principals[id] = p
}

func (s *PrincipalStore) GetPrincipal(ctx context.Context, id uuid.UUID) (*session.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.principals[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &p, nil
}

func (s *PrincipalStore) CompareAndSetRefreshToken(ctx context.Context, id uuid.UUID, expectedOld, newValue string) (bool, error) {
	if s.BeforeCAS != nil {
		s.BeforeCAS()
	}
	if s.CASDelay > 0 {
		timer := time.NewTimer(s.CASDelay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CASCalls++
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.principals[id]
	if !ok || p.CurrentRefreshToken != expectedOld {
		return false, nil
	}
	now := time.Now()
	p.CurrentRefreshToken = newValue
	p.RefreshTokenIssuedAt = &now
	s.principals[id] = p
	return true, nil
}

func (s *PrincipalStore) ClearRefreshToken(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.principals[id]
	if !ok {
		return false, nil
	}
	p.CurrentRefreshToken = ""
	p.RefreshTokenIssuedAt = nil
	s.principals[id] = p
	return true, nil
}
