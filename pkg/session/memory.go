package session

import (
	"context"
	"sync"

	"github.com/andrew/rag-chat/pkg/models"
)

// MemoryStore implements Store in process memory. History lives for the
// lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*transcript
}

// transcript is one session's message list with its own lock so appends to
// different sessions do not contend.
type transcript struct {
	mu       sync.Mutex
	messages []models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*transcript)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) lookup(sessionID string) *transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

func (s *MemoryStore) getOrCreate(sessionID string) *transcript {
	if t := s.lookup(sessionID); t != nil {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[sessionID]
	if !ok {
		t = &transcript{}
		s.sessions[sessionID] = t
	}
	return t
}

// Append adds msgs to the end of the session.
func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	t := s.getOrCreate(sessionID)

	t.mu.Lock()
	t.messages = append(t.messages, msgs...)
	t.mu.Unlock()
	return nil
}

// List returns a snapshot of the session's messages.
func (s *MemoryStore) List(_ context.Context, sessionID string) ([]models.Message, error) {
	t := s.lookup(sessionID)
	if t == nil {
		return []models.Message{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

// Clear removes the session.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// ClearAll drops every session.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	s.sessions = make(map[string]*transcript)
	s.mu.Unlock()
	return nil
}

// Len returns the number of sessions currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
