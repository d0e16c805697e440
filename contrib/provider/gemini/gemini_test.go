package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/sweetpotato0/fiberkb/contrib/provider"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
)

func TestNewRequestSplitsConversation(t *testing.T) {
	req, err := NewRequest([]*message.Message{
		message.NewMessage(message.RoleSystem, "first"),
		message.NewMessage(message.RoleSystem, "second"),
		message.NewMessage(message.RoleUser, "what is lyocell?"),
		message.NewMessage(message.RoleAssistant, "A regenerated cellulose fiber."),
		message.NewMessage(message.RoleUser, "and its density?"),
	})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	if req.System == nil || len(req.System.Parts) != 1 || req.System.Parts[0] != genai.Text("first\nsecond") {
		t.Fatalf("unexpected system instruction: %+v", req.System)
	}
	if len(req.History) != 2 || req.History[0].Role != "user" || req.History[1].Role != "model" {
		t.Fatalf("unexpected history: %+v", req.History)
	}
	if len(req.Prompt) != 1 || req.Prompt[0] != genai.Text("and its density?") {
		t.Fatalf("unexpected prompt: %+v", req.Prompt)
	}
}

func TestNewRequestNeedsTrailingUserTurn(t *testing.T) {
	for name, msgs := range map[string][]*message.Message{
		"empty":          nil,
		"system only":    {message.NewMessage(message.RoleSystem, "s")},
		"assistant last": {message.NewMessage(message.RoleUser, "q"), message.NewMessage(message.RoleAssistant, "a")},
	} {
		if _, err := NewRequest(msgs); !errors.Is(err, errorskg.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestTextJoinsFirstCandidate(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Role: "model", Parts: []genai.Part{genai.Text("Lyocell "), genai.Text("is 1.5 g/cm3.")}}},
		{Content: &genai.Content{Role: "model", Parts: []genai.Part{genai.Text("ignored")}}},
	}}
	if got := Text(resp); got != "Lyocell is 1.5 g/cm3." {
		t.Fatalf("Text = %q", got)
	}
	if Text(nil) != "" || Text(&genai.GenerateContentResponse{}) != "" {
		t.Fatal("empty responses should have no text")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), provider.Config{}); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
