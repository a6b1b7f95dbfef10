// Package registry implements the process-wide user_id -> Session map
// (C11). Sessions never hold a back-reference to the Registry; only the
// Connection Router and the Push Coordinator touch it.
package registry

import (
	"sync"

	"github.com/antoniostano/wallace/internal/session"
)

// Registry maps user_id to the single Session currently considered
// active for that user.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Swap inserts newSession under userID, replacing and returning any
// prior entry (the caller is responsible for cancelling its pipeline).
func (r *Registry) Swap(userID string, newSession *session.Session) (previous *session.Session, hadPrevious bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous, hadPrevious = r.sessions[userID]
	r.sessions[userID] = newSession
	return previous, hadPrevious
}

// Get returns the active session for userID, if any.
func (r *Registry) Get(userID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Delete removes userID's entry iff it still points at s (a later
// reconnect must not be deleted by a stale disconnect).
func (r *Registry) Delete(userID string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[userID]; ok && cur == s {
		delete(r.sessions, userID)
	}
}

// All returns a snapshot slice of every currently registered session,
// safe to iterate without holding the registry lock.
func (r *Registry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of active entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
