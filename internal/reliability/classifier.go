// Package reliability classifies live-session failures for caller-side reconnects.
package reliability

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// IsRetryableCloseCode classifies websocket close codes sent by the live service.
func IsRetryableCloseCode(code int) bool {
	switch code {
	case websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseInternalServerErr,
		websocket.CloseServiceRestart,
		websocket.CloseTryAgainLater:
		return true
	default:
		return false
	}
}

// IsRetryableHTTPStatus classifies handshake failures.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether a session ended by err is worth reconnecting.
// Cancellation and policy closes (bad key, invalid setup) are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return IsRetryableCloseCode(ce.Code)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
