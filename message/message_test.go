package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}

	if other := NewMessage(RoleUser, "again"); other.ID == msg.ID {
		t.Error("Expected distinct IDs for consecutive messages")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	msg := NewMessage(RoleAssistant, "original")
	cloned := Clone(msg)
	cloned.Content = "changed"
	if msg.Content != "original" {
		t.Errorf("Clone shares state with the original")
	}
	if Clone(nil) != nil {
		t.Error("Clone(nil) should be nil")
	}
}

func TestTailAndJoin(t *testing.T) {
	var msgs []*Message
	for _, c := range []string{"a", "b", "", "c", "d"} {
		msgs = append(msgs, NewMessage(RoleUser, c))
	}
	tail := Tail(msgs, 3)
	if len(tail) != 3 || tail[0].Content != "" {
		t.Fatalf("Tail returned %d messages", len(tail))
	}
	if got := JoinContent(tail); got != "c d" {
		t.Errorf("JoinContent = %q", got)
	}
	if len(Tail(msgs, 0)) != len(msgs) {
		t.Error("Tail(0) should return everything")
	}
}
