package session

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Turn is one user/assistant exchange half kept as follow-up context
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Store keeps recent conversation turns per session so follow-up
// prompts can carry prior context. Implementations are bounded: old
// sessions are evicted rather than accumulating forever.
type Store interface {
	// AddTurn appends a turn to the session's history
	AddTurn(ctx context.Context, sessionID string, turn Turn) error

	// History returns the retained turns for a session, oldest first
	History(ctx context.Context, sessionID string) ([]Turn, error)

	// Reset discards a session's history
	Reset(ctx context.Context, sessionID string) error

	// Close releases the store's resources
	Close() error
}

// MemoryStore is an in-process Store bounded two ways: at most
// maxSessions sessions are retained with LRU eviction, and a session
// untouched past its TTL is dropped on next access.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*list.Element
	order       *list.List // front = most recently used
	maxSessions int
	maxTurns    int
	ttl         time.Duration
	now         func() time.Time
}

type sessionEntry struct {
	id       string
	turns    []Turn
	lastSeen time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMaxSessions caps how many sessions are retained
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxSessions = n
	}
}

// WithMaxTurns caps how many turns each session retains
func WithMaxTurns(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxTurns = n
	}
}

// WithTTL sets how long an idle session survives
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// NewMemoryStore creates a bounded in-memory session store
func NewMemoryStore(options ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*list.Element),
		order:       list.New(),
		maxSessions: 1000,
		maxTurns:    20,
		ttl:         time.Hour,
		now:         time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// AddTurn implements Store
func (s *MemoryStore) AddTurn(ctx context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.touch(sessionID)
	entry.turns = append(entry.turns, turn)
	if len(entry.turns) > s.maxTurns {
		entry.turns = entry.turns[len(entry.turns)-s.maxTurns:]
	}

	for len(s.sessions) > s.maxSessions {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
	}
	return nil
}

// History implements Store
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*sessionEntry)
	if s.expired(entry) {
		s.removeElement(elem)
		return nil, nil
	}

	out := make([]Turn, len(entry.turns))
	copy(out, entry.turns)
	return out, nil
}

// Reset implements Store
func (s *MemoryStore) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.sessions[sessionID]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*list.Element)
	s.order.Init()
	return nil
}

// touch returns the session entry, creating it if needed, and marks it
// most recently used. Caller holds the lock.
func (s *MemoryStore) touch(sessionID string) *sessionEntry {
	if elem, ok := s.sessions[sessionID]; ok {
		entry := elem.Value.(*sessionEntry)
		if s.expired(entry) {
			entry.turns = nil
		}
		entry.lastSeen = s.now()
		s.order.MoveToFront(elem)
		return entry
	}

	entry := &sessionEntry{id: sessionID, lastSeen: s.now()}
	s.sessions[sessionID] = s.order.PushFront(entry)
	return entry
}

func (s *MemoryStore) expired(entry *sessionEntry) bool {
	return s.ttl > 0 && s.now().Sub(entry.lastSeen) > s.ttl
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	entry := elem.Value.(*sessionEntry)
	s.order.Remove(elem)
	delete(s.sessions, entry.id)
}
