package chat

import (
	"context"
	"sync"
	"time"
)

// Session is the per-conversation state tracked by the engine. The
// message transcript itself lives in the HistoryStore; the session only
// carries identity and activity bookkeeping.
type Session struct {
	ID         string
	Collection string
	CreatedAt  time.Time
	LastActive time.Time
}

// SessionStore tracks live conversations. Implementations must be safe
// for concurrent use.
type SessionStore interface {
	// GetOrCreate returns the session for id, creating it on first use.
	GetOrCreate(id string) *Session
	// Touch records activity on a session.
	Touch(id string)
	// Reset clears a session's conversation state, including its stored
	// history.
	Reset(ctx context.Context, id string) error
	// Evict forgets a session without touching its persisted history.
	Evict(id string)
}

// MemorySessionStore keeps sessions in a map. History reset is delegated
// to the HistoryStore so both backends behave the same.
type MemorySessionStore struct {
	mutex    sync.Mutex
	sessions map[string]*Session
	history  HistoryStore
}

func NewMemorySessionStore(history HistoryStore) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[string]*Session{},
		history:  history,
	}
}

func (s *MemorySessionStore) GetOrCreate(id string) *Session {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	now := time.Now()
	sess := &Session{ID: id, CreatedAt: now, LastActive: now}
	s.sessions[id] = sess
	return sess
}

func (s *MemorySessionStore) Touch(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActive = time.Now()
	}
}

func (s *MemorySessionStore) Reset(ctx context.Context, id string) error {
	s.mutex.Lock()
	delete(s.sessions, id)
	s.mutex.Unlock()

	if s.history == nil {
		return nil
	}
	return s.history.Reset(ctx, id)
}

func (s *MemorySessionStore) Evict(id string) {
	s.mutex.Lock()
	delete(s.sessions, id)
	s.mutex.Unlock()
}

var _ SessionStore = (*MemorySessionStore)(nil)
