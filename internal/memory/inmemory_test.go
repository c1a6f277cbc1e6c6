package memory

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestInMemoryStoreHistoryIsChronological(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, m := range []Message{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "two"},
		{Role: RoleUser, Content: "three"},
	} {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	got, err := s.History(ctx, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "two" || got[1].Content != "three" {
		t.Fatalf("History(2) = %+v", got)
	}
	if got[0].ID == "" || got[0].CreatedAt.IsZero() {
		t.Fatalf("SaveMessage() did not assign id/timestamp: %+v", got[0])
	}
}

func TestInMemoryStoreSkipsEmptyText(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.SaveMessage(context.Background(), Message{Role: RoleUser, Content: "   "}); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	got, _ := s.History(context.Background(), 10)
	if len(got) != 0 {
		t.Fatalf("History() = %+v, want empty", got)
	}
}

func TestInMemoryStoreRejectsUnknownRole(t *testing.T) {
	err := NewInMemoryStore().SaveMessage(context.Background(), Message{Role: "system", Content: "x"})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("SaveMessage() error = %v, want ErrInvalidRole", err)
	}
}

func TestNewStoreFallsBackToMemory(t *testing.T) {
	for _, raw := range []string{" ", "memory", "MEMORY"} {
		s, err := NewStore(context.Background(), raw)
		if err != nil {
			t.Fatalf("NewStore(%q) error = %v", raw, err)
		}
		if _, ok := s.(*InMemoryStore); !ok {
			t.Fatalf("NewStore(%q) = %T, want *InMemoryStore", raw, s)
		}
	}
}

func TestNewStoreRejectsUnknownScheme(t *testing.T) {
	if _, err := NewStore(context.Background(), "mysql://localhost/iris"); err == nil {
		t.Fatalf("NewStore(mysql) error = nil, want error")
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("IRIS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("IRIS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_messages`); err != nil {
		t.Fatalf("reset table: %v", err)
	}

	_ = s.SaveMessage(ctx, Message{Role: RoleUser, Content: "hello"})
	_ = s.SaveMessage(ctx, Message{Role: RoleAssistant, Content: "hi there"})
	got, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 || got[0].Role != RoleUser || got[1].Role != RoleAssistant {
		t.Fatalf("History() = %+v", got)
	}
}
