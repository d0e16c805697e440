// Package provider defines the chat completion contract the answer pipeline
// depends on; implementations live in the sub-packages.
package provider

import (
	"context"
	"iter"

	"github.com/sweetpotato0/fiberkb/message"
)

// Completer produces the assistant reply for a conversation. System messages carry
// the prompt; user and assistant messages are the conversation in order.
type Completer interface {
	Complete(ctx context.Context, messages []*message.Message) (*message.Message, error)
}

// Streamer is implemented by completers that can yield the reply incrementally.
type Streamer interface {
	Stream(ctx context.Context, messages []*message.Message) iter.Seq2[string, error]
}

// Config holds the settings shared by every provider.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// SplitSystem separates system prompts from the conversation turns.
func SplitSystem(messages []*message.Message) (system []string, turns []*message.Message) {
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return system, turns
}
