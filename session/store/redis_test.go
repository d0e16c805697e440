package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/session"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "fiberkb-test:"+uuid.NewString()+":", time.Minute)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mgr := session.NewManager(s)

	rec, err := mgr.Start(ctx, "user-9")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Append(ctx, rec.ID, message.NewMessage(message.RoleUser, "what is kevlar")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	history, err := mgr.History(ctx, rec.ID, 6)
	if err != nil || len(history) != 1 || history[0].Content != "what is kevlar" {
		t.Fatalf("History = %v, %v", history, err)
	}

	ids, err := s.List(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("List = %v, %v", ids, err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, rec.ID); !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStoreListsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"older", "newer"} {
		rec := &session.Record{ID: id, UserID: "u", State: session.StateActive, UpdatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	ids, err := s.List(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "newer" {
		t.Fatalf("List = %v, %v", ids, err)
	}
}
