package auth

import (
	"fmt"
	"sync"
	"time"
)

// SessionStore is the authoritative in-memory map of live sessions, with a
// secondary index by user id and a one-to-one refresh-token binding. All maps
// are mutated together under one mutex so callers never observe a torn
// session.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	byUser    map[string]map[string]struct{}
	byRefresh map[string]string // refresh token -> session id
	refreshOf map[string]string // session id -> refresh token
}

// NewSessionStore constructs an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*Session),
		byUser:    make(map[string]map[string]struct{}),
		byRefresh: make(map[string]string),
		refreshOf: make(map[string]string),
	}
}

// Create inserts a session and binds its refresh token.
func (s *SessionStore) Create(sess *Session, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[cp.ID] = &cp
	if _, ok := s.byUser[cp.UserID]; !ok {
		s.byUser[cp.UserID] = make(map[string]struct{})
	}
	s.byUser[cp.UserID][cp.ID] = struct{}{}
	if refreshToken != "" {
		s.byRefresh[refreshToken] = cp.ID
		s.refreshOf[cp.ID] = refreshToken
	}
}

// Get returns a copy of the session, if present.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Touch advances LastActivityAt on a live session. ExpiresAt is never moved.
func (s *SessionStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive {
		return false
	}
	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}
	return true
}

// Delete removes the session, its user-index entry, and its refresh binding
// in one critical section. Returns false if the session did not exist.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *SessionStore) deleteLocked(id string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if userSessions, ok := s.byUser[sess.UserID]; ok {
		delete(userSessions, id)
		if len(userSessions) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	if token, ok := s.refreshOf[id]; ok {
		delete(s.byRefresh, token)
		delete(s.refreshOf, id)
	}
	return true
}

// ResolveRefresh maps an opaque refresh token to a copy of its session.
func (s *SessionStore) ResolveRefresh(refreshToken string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRefresh[refreshToken]
	if !ok {
		return Session{}, false
	}
	sess, ok := s.sessions[id]
	if !ok {
		// The binding and the session are deleted together; a dangling
		// binding means the store invariant is broken.
		panic(fmt.Sprintf("auth: refresh binding resolves to missing session %s", id))
	}
	return *sess, true
}

// SessionsForUser returns copies of every session held by the user.
func (s *SessionStore) SessionsForUser(userID string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]Session, 0, len(ids))
	for id := range ids {
		sess, ok := s.sessions[id]
		if !ok {
			panic(fmt.Sprintf("auth: user index references missing session %s", id))
		}
		out = append(out, *sess)
	}
	return out
}

// IDs snapshots every session id. Sweeps iterate the snapshot so deletion
// during the scan is safe.
func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
