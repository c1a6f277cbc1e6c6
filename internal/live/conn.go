// Package live holds the duplex transports to the realtime model service.
package live

import (
	"context"
	"errors"

	"github.com/ent0n29/iris/internal/protocol"
)

var (
	ErrClosed     = errors.New("live connection closed")
	ErrMissingKey = errors.New("live api key missing")
)

// Conn is an open live session. Send is safe for concurrent use; Receive has a single reader.
type Conn interface {
	Send(ctx context.Context, msg protocol.ClientMessage) error
	Receive(ctx context.Context) ([]protocol.ServerEvent, error)
	Close() error
}

// Dialer opens a connection and delivers the setup message exactly once.
type Dialer interface {
	Dial(ctx context.Context, setup protocol.Setup) (Conn, error)
}
