package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweetpotato0/fiberkb/middleware"
)

func turn(user string) *middleware.Context {
	ctx := middleware.NewContext(context.Background())
	ctx.UserID = user
	return ctx
}

func pass(*middleware.Context) error { return nil }

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := l.Execute(turn("alice"), pass); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if err := l.Execute(turn("alice"), pass); !errors.Is(err, middleware.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if err := l.Execute(turn("bob"), pass); err != nil {
		t.Fatalf("other users have their own window: %v", err)
	}

	now = now.Add(time.Minute)
	if err := l.Execute(turn("alice"), pass); err != nil {
		t.Fatalf("new window should allow: %v", err)
	}
	if l.Count("alice") != 1 {
		t.Fatalf("count = %d", l.Count("alice"))
	}

	l.Reset()
	if l.Count("alice") != 0 {
		t.Fatal("reset did not clear windows")
	}
}
