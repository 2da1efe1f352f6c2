package usecases

import (
	"sync"

	"github.com/datachat/datachat-go/internal/domain/entities"
)

// DefaultMemoryCapacity is how many past turns a conversation keeps.
const DefaultMemoryCapacity = 3

// ConversationMemory is a bounded FIFO of past (question, answer) turns.
// Appending beyond capacity evicts the oldest turn.
type ConversationMemory struct {
	mu       sync.Mutex
	capacity int
	turns    []entities.Turn
}

// NewConversationMemory creates a memory holding at most capacity turns.
func NewConversationMemory(capacity int) *ConversationMemory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &ConversationMemory{capacity: capacity}
}

// Append records a completed turn, evicting the oldest once full.
func (m *ConversationMemory) Append(turn entities.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, turn)
	if len(m.turns) > m.capacity {
		m.turns = m.turns[len(m.turns)-m.capacity:]
	}
}

// Recent returns up to n turns in insertion order, oldest first.
func (m *ConversationMemory) Recent(n int) []entities.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.turns) {
		n = len(m.turns)
	}
	out := make([]entities.Turn, n)
	copy(out, m.turns[len(m.turns)-n:])
	return out
}

// Len reports how many turns are currently held.
func (m *ConversationMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Clear discards the history.
func (m *ConversationMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// SessionMemories keys one ConversationMemory per session so histories never
// leak across conversations.
type SessionMemories struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*ConversationMemory
}

// NewSessionMemories creates the session-keyed memory map.
func NewSessionMemories(capacity int) *SessionMemories {
	return &SessionMemories{
		capacity: capacity,
		sessions: make(map[string]*ConversationMemory),
	}
}

// Get returns the memory for a session, creating it on first use.
func (s *SessionMemories) Get(sessionID string) *ConversationMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, ok := s.sessions[sessionID]
	if !ok {
		mem = NewConversationMemory(s.capacity)
		s.sessions[sessionID] = mem
	}
	return mem
}

// Drop removes a session's history entirely.
func (s *SessionMemories) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of live sessions.
func (s *SessionMemories) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
