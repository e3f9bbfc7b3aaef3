package webhook

import (
	"sync"
	"time"

	"goldbroker/internal/session"
)

// sessionStore holds one session.Session per phone number. Reads and writes
// for a given phone are only ever performed by that phone's request
// goroutine at a time in practice (the vendor delivers one message at a
// time per conversation), but the map itself is shared across all phones'
// goroutines, so it is guarded by a mutex — spec.md §5's "Session table:
// read/written by the dispatcher for that phone only; no cross-phone
// contention" describes the access pattern, not a reason to skip the lock on
// the shared map.
type sessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*session.Session
	idleTimeout time.Duration
}

func newSessionStore(idleTimeout time.Duration) *sessionStore {
	return &sessionStore{sessions: make(map[string]*session.Session), idleTimeout: idleTimeout}
}

// GetOrCreate returns the existing session for phone, or a fresh one in
// StateStart if none exists yet or the existing one has gone idle.
func (s *sessionStore) GetOrCreate(phone string, accountID uint, now time.Time) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[phone]
	if ok && s.idleTimeout > 0 && now.Sub(sess.LastUpdated) > s.idleTimeout {
		ok = false
	}
	if !ok {
		sess = session.New(phone, accountID)
		s.sessions[phone] = sess
	}
	sess.AccountID = accountID
	return sess
}

// Touch updates a session's LastUpdated timestamp after handling a message.
func (s *sessionStore) Touch(phone string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[phone]; ok {
		sess.LastUpdated = now
	}
}

// EvictIdle removes sessions that have been idle longer than idleTimeout,
// freeing memory for phone numbers that stopped messaging.
func (s *sessionStore) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for phone, sess := range s.sessions {
		if now.Sub(sess.LastUpdated) > s.idleTimeout {
			delete(s.sessions, phone)
			evicted++
		}
	}
	return evicted
}
