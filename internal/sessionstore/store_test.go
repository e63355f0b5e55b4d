package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/retail-assistant/internal/domain"
)

func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts...), mr
}

func TestAppendAndLoad(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	got, err := s.Load(ctx, "s1")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty session: %v %v", got, err)
	}

	err = s.Append(ctx, "s1",
		domain.ConversationTurn{Role: domain.RoleUser, Content: "hi"},
		domain.ConversationTurn{Role: domain.RoleAssistant, Content: "hello", ToolCalls: []domain.ToolCall{{ID: "c1", Name: "search_catalog", Arguments: "{}"}}},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err = s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].ToolCalls[0].Name != "search_catalog" {
		t.Fatalf("unexpected turns: %+v", got)
	}
}

func TestAppend_TrimsAndExpires(t *testing.T) {
	s, mr := newStore(t, WithMaxTurns(3), WithTTL(time.Hour))
	ctx := context.Background()

	for _, c := range []string{"1", "2", "3", "4", "5"} {
		if err := s.Append(ctx, "s1", domain.ConversationTurn{Role: domain.RoleUser, Content: c}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := s.Load(ctx, "s1")
	if len(got) != 3 || got[0].Content != "3" || got[2].Content != "5" {
		t.Fatalf("expected last three turns, got %+v", got)
	}
	if ttl := mr.TTL(key("s1")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	got, _ = s.Load(ctx, "s1")
	if len(got) != 0 {
		t.Fatalf("expected expired session, got %+v", got)
	}
}

func TestLoad_SkipsCorruptEntries(t *testing.T) {
	s, mr := newStore(t)
	if _, err := mr.RPush(key("s1"), "not json", `{"role":"user","content":"ok"}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := s.Load(context.Background(), "s1")
	if err != nil || len(got) != 1 || got[0].Content != "ok" {
		t.Fatalf("unexpected: %+v %v", got, err)
	}
}

func TestConnect_BadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "::not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
