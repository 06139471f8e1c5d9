package authsession

import (
	"context"
	"sync"
	"time"

	domain "coachhub/internal/domain/authsession"
)

// MemoryStore implements Store in process memory. Sessions are lost on restart.
type MemoryStore struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]domain.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, sessions: make(map[string]domain.Session)}
}

// Get returns the session for token.
// PRE: token is non-empty
// POST: Returns ErrNotFound for unknown or expired sessions
func (m *MemoryStore) Get(_ context.Context, token string) (domain.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	if s.Expired(m.now()) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return domain.Session{}, ErrNotFound
	}
	return s, nil
}

// Save inserts or replaces a session.
// PRE: s has been validated
func (m *MemoryStore) Save(_ context.Context, s domain.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.Token] = s
	m.mu.Unlock()
	return nil
}

// Delete removes a session. Unknown tokens are not an error.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
	return nil
}

// DeleteByUser removes every session of userID.
func (m *MemoryStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes sessions older than the maximum age at now.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}
