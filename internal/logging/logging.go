package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeySessionID  = "sessionId"
	KeyState      = "state"
	KeyTool       = "tool"
	KeyCallID     = "callId"
	KeyRole       = "role"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

var (
	mu   sync.RWMutex
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
)

// Init configures the process logger. Call once after config is loaded.
// format: "json" or "text" (default "text")
// level: "debug", "info", "warn", "error" (default "info")
// out: writer to log to (nil = os.Stderr)
func Init(format, level string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if !strings.EqualFold(strings.TrimSpace(format), "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stderr && out != os.Stdout}
	}
	logger := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()

	mu.Lock()
	root = logger
	mu.Unlock()
}

// L returns a logger tagged with the given component.
func L(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str(KeyComponent, component).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
