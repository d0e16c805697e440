package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/session"
)

func TestManagerAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(NewStore())

	rec, err := mgr.Start(ctx, "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i, content := range []string{"tell me about cotton", "Cotton is...", "what about its density?", "1.54 g/cm3", "and wool?", "Wool is...", "compare them"} {
		role := message.RoleUser
		if i%2 == 1 {
			role = message.RoleAssistant
		}
		if err := mgr.Append(ctx, rec.ID, message.NewMessage(role, content)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	history, err := mgr.History(ctx, rec.ID, 6)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 6 || history[0].Content != "Cotton is..." {
		t.Fatalf("expected the last 6 turns, got %d starting with %q", len(history), history[0].Content)
	}

	if h, err := mgr.History(ctx, "missing", 6); err != nil || h != nil {
		t.Fatalf("unknown conversation should have no history, got %v, %v", h, err)
	}
}

func TestManagerCreateStoresFirstTurn(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	mgr := session.NewManager(store)

	rec := session.NewRecord("user-1")
	if _, err := mgr.Get(ctx, rec.ID); !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("a new record should not be stored yet, got %v", err)
	}
	if err := mgr.Create(ctx, rec,
		message.NewMessage(message.RoleUser, "what is hemp?"),
		message.NewMessage(message.RoleAssistant, "A bast fiber."),
	); err != nil {
		t.Fatalf("Create: %v", err)
	}

	history, err := mgr.History(ctx, rec.ID, 0)
	if err != nil || len(history) != 2 || history[1].Content != "A bast fiber." {
		t.Fatalf("unexpected history %v (%v)", history, err)
	}
}

func TestManagerRejectsInactive(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(NewStore())
	rec, _ := mgr.Start(ctx, "user-1")

	if err := mgr.Deactivate(ctx, rec.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	err := mgr.Append(ctx, rec.ID, message.NewMessage(message.RoleUser, "hi"))
	if !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(context.Background(), "nope"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreEvictsLeastRecentlyUpdated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithMaxConversations(2))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b"} {
		rec := &session.Record{ID: id, UserID: "u", State: session.StateActive, UpdatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	// updating an existing conversation never evicts
	if err := store.Save(ctx, &session.Record{ID: "a", UserID: "u", UpdatedAt: base.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Save(a): %v", err)
	}
	if err := store.Save(ctx, &session.Record{ID: "c", UserID: "u", UpdatedAt: base.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("Save(c): %v", err)
	}

	if ok, _ := store.Exists(ctx, "b"); ok {
		t.Fatal("expected b to be evicted")
	}
	ids, _ := store.List(ctx)
	if len(ids) != 2 || ids[0] != "c" || ids[1] != "a" {
		t.Fatalf("List() = %v, want [c a]", ids)
	}
}
