package provider

import (
	"testing"

	"github.com/sweetpotato0/fiberkb/message"
)

func TestSplitSystem(t *testing.T) {
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, "be precise"),
		message.NewMessage(message.RoleUser, "what is cotton?"),
		nil,
		message.NewMessage(message.RoleAssistant, "a seed fiber"),
	}
	system, turns := SplitSystem(msgs)
	if len(system) != 1 || system[0] != "be precise" {
		t.Fatalf("unexpected system prompts: %v", system)
	}
	if len(turns) != 2 || turns[0].Role != message.RoleUser || turns[1].Role != message.RoleAssistant {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}
