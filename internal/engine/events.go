package engine

import (
	"sync"
	"time"
)

type EventType string

const (
	EventState         EventType = "state"
	EventTranscript    EventType = "transcript"
	EventToolCalls     EventType = "tool_calls"
	EventContextNotice EventType = "context_notice"
	EventInterrupted   EventType = "interrupted"
	EventTurnComplete  EventType = "turn_complete"
	EventError         EventType = "error"
)

// Event is a UI-facing notification about the current session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Source    string    `json:"source,omitempty"`
	Text      string    `json:"text,omitempty"`
	Tools     []string  `json:"tools,omitempty"`
	At        time.Time `json:"at"`
}

const subscriberBuffer = 64

// broadcaster fans events out to subscribers. Slow subscribers lose events.
type broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
