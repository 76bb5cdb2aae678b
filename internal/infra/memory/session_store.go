package memory

import (
	"context"
	"sync"
	"time"

	"batch-disburser/internal/domain"
)

type sessionEntry struct {
	sess      domain.AuthSession
	expiresAt time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	now      func() time.Time
}

// NewSessionStore creates an in-memory auth session store with lazy
// expiry.
func NewSessionStore() domain.SessionStore {
	return &sessionStore{
		sessions: make(map[string]sessionEntry),
		now:      time.Now,
	}
}

func (s *sessionStore) Save(_ context.Context, state string, sess domain.AuthSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state] = sessionEntry{sess: sess, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *sessionStore) Get(_ context.Context, state string) (domain.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[state]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.sessions, state)
		return domain.AuthSession{}, domain.ErrSessionNotFound
	}
	return entry.sess, nil
}

func (s *sessionStore) Delete(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, state)
	return nil
}
