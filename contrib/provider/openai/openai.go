// Package openai implements provider.Completer with the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"
	"iter"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/sweetpotato0/fiberkb/contrib/provider"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
)

// DefaultModel is used when the config leaves Model empty.
const DefaultModel = string(openaisdk.ChatModelGPT4oMini)

// Provider implements provider.Completer and provider.Streamer for OpenAI.
type Provider struct {
	config provider.Config
	client openaisdk.Client
}

// New creates a new OpenAI provider using official SDK
func New(config provider.Config) *Provider {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Provider{config: config, client: openaisdk.NewClient(options...)}
}

func (p *Provider) params(messages []*message.Message) openaisdk.ChatCompletionNewParams {
	converted := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			converted = append(converted, openaisdk.SystemMessage(msg.Content))
		case message.RoleUser:
			converted = append(converted, openaisdk.UserMessage(msg.Content))
		case message.RoleAssistant:
			converted = append(converted, openaisdk.AssistantMessage(msg.Content))
		}
	}
	params := openaisdk.ChatCompletionNewParams{
		Messages: converted,
		Model:    openaisdk.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = param.NewOpt(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.config.MaxTokens)
	}
	return params
}

// Complete implements provider.Completer.
func (p *Provider) Complete(ctx context.Context, messages []*message.Message) (reply *message.Message, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "openai.ChatCompletion")
	defer func() { telemetry.End(span, err) }()

	completion, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}
	return message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content), nil
}

// Stream implements provider.Streamer, yielding content deltas.
func (p *Provider) Stream(ctx context.Context, messages []*message.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(event.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("OpenAI streaming error: %w", err))
		}
	}
}
