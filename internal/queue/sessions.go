package queue

import (
	"io"
	"sync"
)

// SessionSet tracks the open network sessions attached to each owner's
// in-flight operation so a global stop can force-close them. Closing is
// best-effort; already-closed sessions are ignored.
type SessionSet struct {
	mu       sync.Mutex
	sessions map[int64]map[io.Closer]struct{}
}

// NewSessionSet creates an empty SessionSet.
func NewSessionSet() *SessionSet {
	return &SessionSet{sessions: make(map[int64]map[io.Closer]struct{})}
}

// Add registers a session for the owner.
func (s *SessionSet) Add(ownerID int64, session io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sessions[ownerID]
	if !ok {
		set = make(map[io.Closer]struct{})
		s.sessions[ownerID] = set
	}
	set[session] = struct{}{}
}

// Remove unregisters a session for the owner.
func (s *SessionSet) Remove(ownerID int64, session io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.sessions[ownerID]; ok {
		delete(set, session)
	}
}

// CloseAll force-closes every registered session and clears the registry.
func (s *SessionSet) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.sessions {
		for session := range set {
			_ = session.Close()
		}
	}
	s.sessions = make(map[int64]map[io.Closer]struct{})
}

// Count returns the number of sessions registered for the owner.
func (s *SessionSet) Count(ownerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions[ownerID])
}
