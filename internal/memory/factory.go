package memory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// NewStore picks the history backend from databaseURL: empty or "memory"
// keeps history in process, postgres:// and postgresql:// URLs use Postgres.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	raw := strings.TrimSpace(databaseURL)
	if raw == "" || strings.EqualFold(raw, "memory") {
		return NewInMemoryStore(), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, raw)
	default:
		return nil, fmt.Errorf("DATABASE_URL scheme %q is not supported (want postgres)", u.Scheme)
	}
}
