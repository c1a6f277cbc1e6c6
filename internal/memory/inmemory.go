package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps history for the lifetime of the process.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveMessage(_ context.Context, msg Message) error {
	msg, ok, err := normalize(msg)
	if err != nil || !ok {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) History(_ context.Context, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(s.messages) {
		limit = len(s.messages)
	}
	out := make([]Message, limit)
	copy(out, s.messages[len(s.messages)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
