package cache

import (
	"context"
	"sync"
	"time"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

// MemorySessionStore is an in-memory SessionRepository for tests and
// single-node deployments. Expired entries are returned as-is; the
// session service decides what expiry means, and DeleteExpiredSessions
// reclaims them in bulk.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.AuthorizationSession
}

var _ domain.SessionRepository = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.AuthorizationSession),
	}
}

// StoreSession implements domain.SessionRepository.
func (s *MemorySessionStore) StoreSession(_ context.Context, session *domain.AuthorizationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.State]; exists {
		return mcperrors.NewConfigurationError("session state collision")
	}
	s.sessions[session.State] = *session
	return nil
}

// GetSession implements domain.SessionRepository.
func (s *MemorySessionStore) GetSession(_ context.Context, state string) (*domain.AuthorizationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[state]
	if !ok {
		return nil, mcperrors.NewSessionNotFound(state)
	}
	return &session, nil
}

// DeleteSession implements domain.SessionRepository.
func (s *MemorySessionStore) DeleteSession(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[state]; !ok {
		return mcperrors.NewSessionNotFound(state)
	}
	delete(s.sessions, state)
	return nil
}

// DeleteExpiredSessions implements domain.SessionRepository.
func (s *MemorySessionStore) DeleteExpiredSessions(_ context.Context, now time.Time) ([]*domain.AuthorizationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reclaimed []*domain.AuthorizationSession
	for state, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			session := session
			reclaimed = append(reclaimed, &session)
			delete(s.sessions, state)
		}
	}
	return reclaimed, nil
}

// ListActiveSessionsForServer implements domain.SessionRepository.
func (s *MemorySessionStore) ListActiveSessionsForServer(_ context.Context, serverID string, now time.Time) ([]*domain.AuthorizationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*domain.AuthorizationSession
	for _, session := range s.sessions {
		if session.ServerID == serverID && now.Before(session.ExpiresAt) {
			session := session
			active = append(active, &session)
		}
	}
	return active, nil
}

// Count returns the number of stored sessions, expired or not.
func (s *MemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
