package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session exists for a given id.
var ErrNotFound = errors.New("session not found")

// Store is a concurrency-safe in-memory registry of order sessions.
// Different sessions may be mutated in parallel; mutation of a single
// session is serialized by the session's own lock.
type Store struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// Now is the clock used for timestamps. Tests override it.
	Now func() time.Time
}

// NewStore creates an empty session store
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger:   logger,
		sessions: make(map[string]*Session),
		Now:      time.Now,
	}
}

// Create returns the session for id, creating it if absent. An empty
// id gets a generated one. Idempotent: a second call with the same id
// returns the same session.
func (st *Store) Create(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[id]; ok {
		return sess
	}

	now := st.Now()
	sess := &Session{
		ID:             id,
		StartTime:      now,
		LastActivityAt: now,
		Items:          []Item{},
		Messages:       []Message{},
	}
	st.sessions[id] = sess
	st.logger.Info("created order session", "session_id", id)
	return sess
}

// Get retrieves a session by id
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Touch updates a session's last-activity timestamp. Returns false if
// the session does not exist.
func (st *Store) Touch(id string) bool {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return false
	}
	sess.Lock()
	sess.Touch(st.Now())
	sess.Unlock()
	return true
}

// Delete removes a session from the store
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		st.logger.Info("deleted order session", "session_id", id)
	}
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle longer than ttl and returns how many
// were removed. A ttl of zero disables reaping.
func (st *Store) Sweep(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		sess.Lock()
		idle := now.Sub(sess.LastActivityAt)
		sess.Unlock()
		if idle > ttl {
			delete(st.sessions, id)
			removed++
			st.logger.Info("reaped idle session", "session_id", id, "idle", idle)
		}
	}
	return removed
}

// RunReaper sweeps idle sessions on a ticker until ctx is cancelled.
func (st *Store) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep(st.Now(), ttl)
		}
	}
}
