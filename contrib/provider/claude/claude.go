// Package claude implements provider.Completer with the Anthropic messages API.
package claude

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/fiberkb/contrib/provider"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
)

const (
	// DefaultModel is used when the config leaves Model empty.
	DefaultModel = "claude-sonnet-4-5-20250929"
	// DefaultMaxTokens is required by the API when the config leaves MaxTokens unset.
	DefaultMaxTokens = 4096
)

// Provider implements provider.Completer and provider.Streamer for Claude.
type Provider struct {
	config provider.Config
	client anthropic.Client
}

// New creates a new Claude provider using official SDK
func New(config provider.Config) *Provider {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithAuthToken(""),
	}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{config: config, client: anthropic.NewClient(options...)}
}

// Params converts messages to a request. System prompts are joined into the
// top-level system block; the API has no system role.
func (p *Provider) Params(messages []*message.Message) anthropic.MessageNewParams {
	system, turns := provider.SplitSystem(messages)
	converted := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		switch msg.Role {
		case message.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		Messages:  converted,
		MaxTokens: p.config.MaxTokens,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n")}}
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	return params
}

// Complete implements provider.Completer.
func (p *Provider) Complete(ctx context.Context, messages []*message.Message) (reply *message.Message, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "claude.Messages")
	defer func() { telemetry.End(span, err) }()

	resp, err := p.client.Messages.New(ctx, p.Params(messages))
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

// Stream implements provider.Streamer, yielding text deltas.
func (p *Provider) Stream(ctx context.Context, messages []*message.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := p.client.Messages.NewStreaming(ctx, p.Params(messages))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta()
			if delta.Delta.Type != "text_delta" || delta.Delta.Text == "" {
				continue
			}
			if !yield(delta.Delta.Text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("Claude streaming error: %w", err))
		}
	}
}
