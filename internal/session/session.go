// Package session manages in-memory conversation history for chat sessions.
//
// Sessions are keyed by a caller-supplied conversation ID and live for the
// configured retention window (24 hours by default). Retention is enforced
// opportunistically: every write sweeps sessions whose creation time has
// passed the cutoff. The sweep is O(active sessions) per write, an accepted
// tradeoff for a single-process deployment.
//
// The store is safe for concurrent use by multiple goroutines.
package session

import (
	"sync"
	"time"
)

// Message roles. The model side of an exchange is stored as RoleAssistant
// regardless of the provider's own role naming.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation message. Immutable once created.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultTTL is the default session retention window.
const DefaultTTL = 24 * time.Hour

// DefaultHistoryDepth is the default number of exchange pairs returned by History.
const DefaultHistoryDepth = 5

// entry holds one session's state. Owned exclusively by Store.
type entry struct {
	messages  []Message
	createdAt time.Time
}

// Store is the conversation session store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the session retention window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides the time source. Test use.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMessage appends a message to the session's history, creating the session
// on first use. Every write also sweeps expired sessions.
func (s *Store) AddMessage(id, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(id, Message{Role: role, Content: content})
	s.sweepLocked()
}

// AppendExchange appends one completed (user, assistant) pair atomically.
// The agent engine uses this so a turn either persists both messages or
// neither; partial turns never reach the store.
func (s *Store) AppendExchange(id, userContent, assistantContent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(id, Message{Role: RoleUser, Content: userContent})
	s.appendLocked(id, Message{Role: RoleAssistant, Content: assistantContent})
	s.sweepLocked()
}

// History returns up to lastN most recent exchange pairs (2*lastN messages)
// in original order. lastN <= 0 falls back to DefaultHistoryDepth.
func (s *Store) History(id string, lastN int) []Message {
	if lastN <= 0 {
		lastN = DefaultHistoryDepth
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}

	msgs := e.messages
	if max := lastN * 2; len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	// Copy so callers never observe later appends.
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear removes a session and its history.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// Len reports the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// appendLocked appends a message, creating the session if needed.
// Caller must hold s.mu.
func (s *Store) appendLocked(id string, msg Message) {
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{createdAt: s.now()}
		s.sessions[id] = e
	}
	e.messages = append(e.messages, msg)
}

// sweepLocked deletes sessions older than the retention window.
// Caller must hold s.mu.
func (s *Store) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, e := range s.sessions {
		if e.createdAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}
