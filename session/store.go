package session

import (
	"sync"
	"time"
)

// Store is the single owner of the current Session for one account. Reads
// are safe from any goroutine; writes are expected to happen only inside
// the auth client's login/refresh critical section, so the lock here only
// guards snapshot consistency, not write ordering.
type Store struct {
	mu      sync.RWMutex
	current *Session
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns a snapshot of the current session, or nil when no session
// has been established. The snapshot is a copy.
func (s *Store) Get() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Replace installs a new session unconditionally. Used when loading a
// persisted session at startup and on account re-registration.
func (s *Store) Replace(next *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next.Clone()
}

// Clear drops the current session, returning the store to the
// unauthenticated state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// ApplyRotation compares the candidate token pair against the current
// session and installs it only when at least one token differs and both
// candidate tokens are non-empty. The returned flag tells the caller
// whether a persistence write is warranted; the upstream service often
// echoes the same tokens back, and those echoes must not trigger writes.
//
// APIHost is sticky: when a session already exists its host is kept, so a
// rotation can never move the account to a different host.
func (s *Store) ApplyRotation(candidate *Session) bool {
	if !candidate.Complete() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil &&
		s.current.SessionID == candidate.SessionID &&
		s.current.RefreshSessionID == candidate.RefreshSessionID {
		return false
	}

	next := candidate.Clone()
	if s.current != nil {
		next.APIHost = s.current.APIHost
		if next.AccountUserID == "" {
			next.AccountUserID = s.current.AccountUserID
		}
	}
	if next.ValidSince == 0 {
		next.ValidSince = time.Now().Unix()
	}
	s.current = next
	return true
}
