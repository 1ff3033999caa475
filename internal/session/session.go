package session

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// maxHistory bounds the conversation context kept per session. Older
// turns are discarded; the NLU backend only needs recent context.
const maxHistory = 20

// Message represents a single conversation turn
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Item represents one line of an in-progress order. UnitPrice is a
// snapshot taken when the item was added; later menu changes do not
// affect it.
type Item struct {
	MenuItemID    string          `json:"menu_item_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	Modifications string          `json:"modifications,omitempty"`
}

// Session represents an in-progress order accumulated over a voice
// conversation. All mutation goes through methods that hold the
// session mutex; two utterances for the same session never race.
type Session struct {
	ID             string    `json:"id"`
	TableNumber    string    `json:"table_number,omitempty"`
	StartTime      time.Time `json:"start_time"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Items          []Item    `json:"items"`
	Messages       []Message `json:"messages"`

	mu sync.Mutex
}

// Lock serializes mutation of this session. Callers must not hold the
// lock across collaborator calls.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch updates the last-activity timestamp. Caller must hold the lock.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

// AddMessage appends a conversation turn, discarding the oldest turns
// beyond the history bound. Caller must hold the lock.
func (s *Session) AddMessage(role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	if len(s.Messages) > maxHistory {
		s.Messages = s.Messages[len(s.Messages)-maxHistory:]
	}
}

// SnapshotItems returns a copy of the item list safe to read without
// the lock.
func (s *Session) SnapshotItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return items
}

// SnapshotMessages returns a copy of the conversation history safe to
// read without the lock.
func (s *Session) SnapshotMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}
