package relay

import (
	"sort"
	"sync"
	"time"
)

// Store maps human-shareable session ids to pairing sessions. The map is
// guarded by its own lock; per-session mutation is serialized by each
// session's mutex, so different sessions proceed fully in parallel.
//
// Lock ordering: store lock first, then session lock. No code path takes
// the store lock while holding a session lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*PairingSession

	// now is injectable for lifecycle tests.
	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*PairingSession),
		now:      time.Now,
	}
}

// Ensure returns the session with the given id, creating it with both
// connection slots empty if it does not exist. Idempotent per id.
func (s *Store) Ensure(id string) *PairingSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	sess := &PairingSession{
		id:        id,
		state:     StateCreated,
		mode:      ModeLogin,
		createdAt: s.now(),
		// A freshly created session has no connections yet; the expiry
		// clock runs until the first attach.
		emptySince: s.now(),
	}
	s.sessions[id] = sess
	return sess
}

// Get returns the session with the given id, if present.
func (s *Store) Get(id string) (*PairingSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// AttachDesktop creates the session if needed and binds (or rebinds) its
// desktop slot. Desktop attach always creates: the desktop initiates a
// pairing. Rebinding retains accumulated proof/location state.
func (s *Store) AttachDesktop(id, connID string, meta DesktopMeta) *PairingSession {
	sess := s.Ensure(id)
	sess.attachDesktop(connID, meta)
	return sess
}

// AttachMobile binds (or rebinds) the mobile slot of an existing session.
// Mobile attach requires a pre-existing session (the desktop initiates,
// the mobile joins) and fails with ErrSessionNotFound otherwise, without
// creating anything.
func (s *Store) AttachMobile(id, connID string, meta MobileMeta) (*PairingSession, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.attachMobile(connID, meta)
	return sess, nil
}

// Detach clears the given role's slot. If both slots become empty the
// session's expiry timer starts. Detaching an unknown session is a no-op.
func (s *Store) Detach(id string, role Role) {
	sess, ok := s.Get(id)
	if !ok {
		return
	}
	sess.detach(role, s.now())
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshots returns redacted views of all live sessions, newest first.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	sessions := make([]*PairingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		snaps = append(snaps, sess.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps
}

// ReapExpired removes sessions eligible for collection and returns their
// ids: sessions with both slots empty beyond the grace period, and
// sessions older than maxAge regardless of connection state.
func (s *Store) ReapExpired(grace, maxAge time.Duration) []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	for id, sess := range s.sessions {
		if sess.reapable(now, grace, maxAge) {
			delete(s.sessions, id)
			reaped = append(reaped, id)
		}
	}
	return reaped
}
