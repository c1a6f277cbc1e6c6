package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/memory"
	"github.com/ent0n29/iris/internal/observability"
	"github.com/ent0n29/iris/internal/policy"
	"github.com/ent0n29/iris/internal/protocol"
)

// TranscriptBuffer accumulates the current turn's input and output transcription.
// Fragments are appended verbatim in arrival order; Take trims and clears.
type TranscriptBuffer struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
}

func (b *TranscriptBuffer) Append(src protocol.TranscriptSource, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch src {
	case protocol.SourceInput:
		b.user.WriteString(text)
	case protocol.SourceOutput:
		b.assistant.WriteString(text)
	}
}

// Take returns the trimmed user and assistant text and empties both buffers.
func (b *TranscriptBuffer) Take() (user, assistant string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	user = strings.TrimSpace(b.user.String())
	assistant = strings.TrimSpace(b.assistant.String())
	b.user.Reset()
	b.assistant.Reset()
	return user, assistant
}

func (b *TranscriptBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.user.String()) == "" && strings.TrimSpace(b.assistant.String()) == ""
}

const (
	persistQueueSize      = 64
	defaultPersistTimeout = 5 * time.Second
)

// persister writes finished turns on one goroutine so saves keep their order.
type persister struct {
	store     memory.Store
	sessionID string
	redact    bool
	timeout   time.Duration
	metrics   *observability.Metrics
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan memory.Message
	done   chan struct{}
}

func newPersister(store memory.Store, sessionID string, redact bool, timeout time.Duration, metrics *observability.Metrics) *persister {
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	p := &persister{
		store:     store,
		sessionID: sessionID,
		redact:    redact,
		timeout:   timeout,
		metrics:   metrics,
		log:       logging.L("persist").With().Str(logging.KeySessionID, sessionID).Logger(),
		queue:     make(chan memory.Message, persistQueueSize),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// enqueue schedules one message. Empty text and a full or closed queue are dropped.
func (p *persister) enqueue(role, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	msg := memory.Message{
		ID:        uuid.NewString(),
		SessionID: p.sessionID,
		Role:      role,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	if p.redact {
		msg.Content, msg.PIIRedacted = policy.RedactPII(text)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- msg:
		return true
	default:
		p.metrics.PersistenceFailures.Inc()
		p.log.Warn().Str(logging.KeyRole, role).Msg("persist queue full; message dropped")
		return false
	}
}

func (p *persister) run() {
	defer close(p.done)
	for msg := range p.queue {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.store.SaveMessage(ctx, msg)
		cancel()
		if err != nil {
			p.metrics.PersistenceFailures.Inc()
			p.log.Warn().
				Err(fmt.Errorf("%w: %w", ErrPersistence, err)).
				Str(logging.KeyRole, msg.Role).
				Msg("save message failed")
			continue
		}
		p.metrics.ObserveStage("persist", time.Since(start))
		p.log.Debug().Str(logging.KeyRole, msg.Role).Str("text", policy.Redacted(msg.Content)).Msg("message saved")
	}
}

// close stops accepting messages. Queued messages are still written.
func (p *persister) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// wait blocks until queued messages are written or ctx ends.
func (p *persister) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
