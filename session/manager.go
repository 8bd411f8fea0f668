package session

import (
	"fmt"
	"sync"

	"github.com/kit-nsis/gosis/nslp"
)

// Manager owns the process-wide session-id to Session map. Per
// spec.md §5: "guarded by a reader/writer discipline: readers (event
// dispatch) take shared access long enough to look up and bump a
// reference; writers (session creation and destruction) take exclusive
// access briefly." A session's own fields are additionally guarded by
// its own mutex (Session.Lock/Unlock), the same two-level locking
// shape as the teacher's per-client/per-subscription nested maps.
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*Session
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[ID]*Session)}
}

// Lookup returns the session for id, if one exists, under a shared
// (read) lock.
func (m *Manager) Lookup(id ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Create installs a new Idle session for id under an exclusive lock.
// Returns an error if a session with that id already exists -- the
// dispatcher is expected to Lookup first and only Create on a miss.
func (m *Manager) Create(id ID, role Role) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("session: %s already exists", id)
	}
	s := New(id, role)
	m.sessions[id] = s
	return s, nil
}

// Remove deletes a session from the manager, per spec.md §3's "sessions
// ... are destroyed on transition to the terminal Final state" and
// spec.md §8's invariant 7 ("a session exists in the manager iff its
// state ∉ {Final}"). Callers must cancel all the session's timers
// before calling Remove.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports the number of live sessions, for tests and metrics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Precedes implements the RFC-1982 serial-number comparison spec.md
// §4.7.1 mandates for MSN/RSN ordering: a ≺ b iff 0 < (b-a) mod 2^32 <
// 2^31. Re-exported from nslp.Precedes so session callers don't need to
// import nslp directly just for this.
func Precedes(a, b uint32) bool { return nslp.Precedes(a, b) }
