package engine

import "errors"

// Error taxonomy. Callers match with errors.Is.
var (
	// ErrConfig means the session cannot start with the current settings, e.g. no API key.
	ErrConfig = errors.New("config error")
	// ErrTransport means the live connection failed or closed.
	ErrTransport = errors.New("transport error")
	// ErrTool marks a tool invocation that produced an error result.
	ErrTool = errors.New("tool error")
	// ErrPersistence marks a history write that failed. It is logged, never returned.
	ErrPersistence = errors.New("persistence error")
	// ErrDevice means the microphone or speaker could not be acquired.
	ErrDevice = errors.New("device error")

	ErrNotActive        = errors.New("session not active")
	ErrAlreadyConnected = errors.New("session already connected")
)
