package auth

import (
	"sync"

	"chat-hub/domain/chat"
)

// SessionStore binds live connections to authenticated identities. It is
// the session collaborator the dispatcher consults per event: identity is
// always looked up explicitly by connection id, never read from ambient
// request state.
//
// A connection that never passed a valid token simply has no binding, and
// every event it sends resolves to "unauthenticated".
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[chat.ConnID]*CustomClaims
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[chat.ConnID]*CustomClaims)}
}

// Bind associates the connection with validated claims.
func (s *SessionStore) Bind(conn chat.ConnID, claims *CustomClaims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conn] = claims
}

// Drop removes the binding. Idempotent.
func (s *SessionStore) Drop(conn chat.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conn)
}

// Resolve implements contract.SessionResolver.
func (s *SessionStore) Resolve(conn chat.ConnID) (chat.Username, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claims, ok := s.sessions[conn]
	if !ok {
		return "", false
	}
	return chat.Username(claims.Username), true
}

// Claims returns the full claim set for admin-gated callers.
func (s *SessionStore) Claims(conn chat.ConnID) (*CustomClaims, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claims, ok := s.sessions[conn]
	return claims, ok
}
