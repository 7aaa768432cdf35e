// Package session keeps per-conversation message histories with idle
// expiry. Sessions are kept in memory only; a restart starts fresh.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/toolclaw/internal/models"
)

// ErrNotFound is returned for operations on an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is one conversation. The embedded mutex guards the history;
// turnMu serializes whole turns so two concurrent requests on the same
// session cannot interleave their messages.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	turnMu   sync.Mutex
	messages []models.ChatMessage
	lastUsed time.Time
}

// LockTurn takes the per-session turn lock. The caller holds it for a
// full request/response cycle and releases it with UnlockTurn.
func (s *Session) LockTurn()   { s.turnMu.Lock() }
func (s *Session) UnlockTurn() { s.turnMu.Unlock() }

// Append adds messages to the history and refreshes the idle clock.
func (s *Session) Append(msgs ...models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.lastUsed = time.Now()
}

// Messages returns a copy of the history. Callers may read it without
// further locking.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the history but keeps the session and its id alive.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.lastUsed = time.Now()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

// Store holds all live sessions.
type Store struct {
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a store whose sessions expire after the given idle
// timeout.
func NewStore(timeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		timeout:  timeout,
		logger:   logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session with the given id, creating it when
// id is empty or unknown. The returned bool reports whether a new
// session was created.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		st.mu.RLock()
		s, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			s.touch()
			return s, false
		}
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		lastUsed:  now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.logger.Debug("session created", "session_id", s.ID)
	return s, true
}

// Get returns an existing session or ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// SweepExpired drops sessions idle for longer than the store timeout
// and returns how many were removed. Safe to call repeatedly.
func (st *Store) SweepExpired() int {
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()
	var removed int
	for id, s := range st.sessions {
		if s.idleSince(now) > st.timeout {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("expired sessions swept", "removed", removed, "remaining", len(st.sessions))
	}
	return removed
}
