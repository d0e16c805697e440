// Package gemini implements provider.Completer with the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/fiberkb/contrib/provider"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
)

// DefaultModel is used when the config leaves Model empty.
const DefaultModel = "gemini-1.5-flash"

// roleModel is the Gemini name of the assistant role.
const roleModel = "model"

// Provider implements provider.Completer for Gemini.
type Provider struct {
	config provider.Config
	client *genai.Client
}

// New creates the API client. BaseURL, when set, replaces the default endpoint.
func New(ctx context.Context, config provider.Config) (*Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("%w: Gemini API key not configured", errorskg.ErrInvalidInput)
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close releases the underlying connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Request is a conversation in Gemini form: the system instruction, the prior turns,
// and the parts of the final user turn that is sent.
type Request struct {
	System  *genai.Content
	History []*genai.Content
	Prompt  []genai.Part
}

// NewRequest converts messages. Assistant turns become the "model" role and system
// prompts are joined into the system instruction. The last turn must be the user's.
func NewRequest(messages []*message.Message) (Request, error) {
	system, turns := provider.SplitSystem(messages)

	var req Request
	if len(system) > 0 {
		req.System = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))}}
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != message.RoleUser {
		return Request{}, fmt.Errorf("%w: conversation must end with a user message", errorskg.ErrInvalidInput)
	}
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == message.RoleAssistant {
			role = roleModel
		}
		req.History = append(req.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	req.Prompt = []genai.Part{genai.Text(turns[len(turns)-1].Content)}
	return req, nil
}

// Complete implements provider.Completer.
func (p *Provider) Complete(ctx context.Context, messages []*message.Message) (reply *message.Message, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gemini.GenerateContent")
	defer func() { telemetry.End(span, err) }()

	req, err := NewRequest(messages)
	if err != nil {
		return nil, err
	}

	model := p.client.GenerativeModel(p.config.Model)
	model.SystemInstruction = req.System
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.config.MaxTokens))
	}
	if p.config.Temperature > 0 {
		model.SetTemperature(float32(p.config.Temperature))
	}

	chat := model.StartChat()
	chat.History = req.History
	resp, err := chat.SendMessage(ctx, req.Prompt...)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	text := Text(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: Gemini returned no text", errorskg.ErrInternal)
	}
	return message.NewMessage(message.RoleAssistant, text), nil
}

// Text concatenates the text parts of the first candidate.
func Text(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
