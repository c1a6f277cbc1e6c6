package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
)

const defaultRecentLimit = 16

// Manager owns the current session record and a short list of ended ones.
type Manager struct {
	mu          sync.RWMutex
	current     *Session
	recent      []*Session
	recentLimit int
	onChange    func(Session)
}

func NewManager(recentLimit int) *Manager {
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &Manager{recentLimit: recentLimit}
}

// SetChangeHook registers a callback invoked after every state change, outside the lock.
func (m *Manager) SetChangeHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = hook
}

// Create starts a new session in Connecting. Any unfinished current session is archived.
func (m *Manager) Create() Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		State:          StateConnecting,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	if m.current != nil {
		m.archiveLocked(m.current)
	}
	m.current = s
	out, hook := *s, m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(out)
	}
	return out
}

// Current returns the live session or the most recently ended one.
func (m *Manager) Current() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != nil {
		return *m.current, nil
	}
	if n := len(m.recent); n > 0 {
		return *m.recent[n-1], nil
	}
	return Session{}, ErrNotFound
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != nil && m.current.ID == id {
		return *m.current, nil
	}
	for _, s := range m.recent {
		if s.ID == id {
			return *s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *Manager) Recent() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		out = append(out, *m.recent[i])
	}
	return out
}

// Transition moves the session identified by id to state to.
func (m *Manager) Transition(id string, to State) (Session, error) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.ID != id {
		m.mu.Unlock()
		return Session{}, ErrNotFound
	}
	if !CanTransition(s.State, to) {
		from := s.State
		m.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.State = to
	s.LastActivityAt = time.Now().UTC()
	if to == StateClosed {
		s.EndedAt = s.LastActivityAt
		m.archiveLocked(s)
		m.current = nil
	}
	out, hook := *s, m.onChange
	m.mu.Unlock()

	if hook != nil {
		hook(out)
	}
	return out, nil
}

// End records why the session is closing. It does not change state.
func (m *Manager) End(id, reason string) error {
	return m.update(id, func(s *Session) {
		if s.EndReason == "" {
			s.EndReason = reason
		}
	})
}

func (m *Manager) RecordTurn(id string) error {
	return m.update(id, func(s *Session) { s.TurnCount++ })
}

func (m *Manager) RecordInterruption(id string) error {
	return m.update(id, func(s *Session) { s.InterruptionCount++ })
}

func (m *Manager) RecordToolCalls(id string, n int) error {
	return m.update(id, func(s *Session) { s.ToolCallCount += n })
}

func (m *Manager) update(id string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != id {
		return ErrNotFound
	}
	fn(m.current)
	m.current.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) archiveLocked(s *Session) {
	m.recent = append(m.recent, s)
	if len(m.recent) > m.recentLimit {
		m.recent = m.recent[len(m.recent)-m.recentLimit:]
	}
}
