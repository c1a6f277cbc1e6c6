package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrInvalidRole = errors.New("invalid message role")

// Message stores one finalized user or assistant utterance.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves conversation history.
type Store interface {
	// SaveMessage stores a message. Empty trimmed content is skipped without error.
	SaveMessage(ctx context.Context, msg Message) error
	// History returns up to limit most recent messages in chronological order.
	History(ctx context.Context, limit int) ([]Message, error)
	Close() error
}

func normalize(msg Message) (Message, bool, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return msg, false, nil
	}
	switch msg.Role {
	case RoleUser, RoleAssistant:
	default:
		return msg, false, ErrInvalidRole
	}
	return msg, true, nil
}
