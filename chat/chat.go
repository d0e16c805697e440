// Package chat answers one fiber question per call: retrieve, ground, prompt, complete, remember.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/fiberkb/contrib/provider"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/middleware"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/prompt"
	"github.com/sweetpotato0/fiberkb/rag/contextbuilder"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/retrieval"
	"github.com/sweetpotato0/fiberkb/session"
)

// DefaultHistoryWindow is the number of earlier turns sent to the model.
const DefaultHistoryWindow = 10

// Retriever produces fiber candidates for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, history []*message.Message) (*retrieval.Result, error)
}

// KnowledgeSource renders knowledge-base documents relevant to a question.
type KnowledgeSource interface {
	KnowledgeContext(ctx context.Context, query string, fiberIDs []int64) string
}

// Request is one user turn. An empty ConversationID starts a new conversation.
type Request struct {
	ConversationID string
	UserID         string
	Query          string
	Profile        prompt.Profile
}

// Response is the answer to one turn.
type Response struct {
	ConversationID string                 `json:"conversation_id"`
	Answer         string                 `json:"answer"`
	Images         []fiber.StructureImage `json:"structure_images,omitempty"`
	Matches        []fiber.Match          `json:"-"`
	Intent         intent.Intent          `json:"intent"`
	Strategy       retrieval.Strategy     `json:"strategy"`
}

// Service runs chat turns.
type Service struct {
	retriever     Retriever
	completer     provider.Completer
	sessions      *session.Manager
	knowledge     KnowledgeSource
	builder       *contextbuilder.Builder
	prompts       *prompt.Manager
	chain         *middleware.Chain
	historyWindow int
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithKnowledge adds knowledge-base documents to the grounding context.
func WithKnowledge(k KnowledgeSource) Option {
	return func(s *Service) { s.knowledge = k }
}

// WithContextBuilder replaces the unbounded fiber context builder.
func WithContextBuilder(b *contextbuilder.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithPrompts replaces the prompt manager; its "system" template renders prompt.SystemData.
func WithPrompts(m *prompt.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.prompts = m
		}
	}
}

// WithMiddleware appends turn middlewares in order.
func WithMiddleware(ms ...middleware.Middleware) Option {
	return func(s *Service) {
		for _, m := range ms {
			s.chain.Add(m)
		}
	}
}

// WithHistoryWindow sets how many earlier turns are replayed to the model; 0 replays all.
func WithHistoryWindow(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyWindow = n
		}
	}
}

// New wires a chat service.
func New(retriever Retriever, completer provider.Completer, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		retriever:     retriever,
		completer:     completer,
		sessions:      sessions,
		builder:       contextbuilder.New(),
		prompts:       prompt.NewManager(),
		chain:         middleware.NewChain(),
		historyWindow: DefaultHistoryWindow,
		logger:        logging.WithComponent("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer runs one turn through the middleware chain and stores the question and answer.
func (s *Service) Answer(ctx context.Context, req Request) (resp *Response, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "chat.Answer")
	defer func() { telemetry.End(span, err) }()

	// a new conversation gets its id now but is stored only with a completed turn
	var fresh *session.Record
	if req.ConversationID == "" {
		fresh = session.NewRecord(req.UserID)
	}

	mw := middleware.NewContext(ctx)
	mw.Input = req.Query
	mw.UserID = req.UserID
	mw.ConversationID = req.ConversationID
	if fresh != nil {
		mw.ConversationID = fresh.ID
	}

	err = s.chain.Execute(mw, func(mw *middleware.Context) error {
		req.Query = mw.Input
		r, reply, err := s.turn(mw.Context(), req, fresh)
		if err != nil {
			return err
		}
		resp = r
		mw.ConversationID = r.ConversationID
		mw.Response = reply
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mw.Response == nil {
		return nil, fmt.Errorf("no response generated: %w", errorskg.ErrInternal)
	}
	resp.Answer = mw.Response.Content

	exchange := []*message.Message{
		message.NewMessage(message.RoleUser, req.Query),
		message.NewMessage(message.RoleAssistant, resp.Answer),
	}
	if fresh != nil {
		err = s.sessions.Create(ctx, fresh, exchange...)
	} else {
		err = s.sessions.Append(ctx, resp.ConversationID, exchange...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record turn: %w", err)
	}

	span.SetAttributes(
		attribute.String("conversation", resp.ConversationID),
		attribute.String("intent.kind", string(resp.Intent.Kind)),
		attribute.Int("matches", len(resp.Matches)),
	)
	return resp, nil
}

func (s *Service) turn(ctx context.Context, req Request, fresh *session.Record) (*Response, *message.Message, error) {
	convID, history, err := s.conversation(ctx, req, fresh)
	if err != nil {
		return nil, nil, err
	}

	res, err := s.retriever.Retrieve(ctx, req.Query, history)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without fiber context", "error", err)
		res = &retrieval.Result{Query: req.Query, Strategy: retrieval.StrategyNone}
	}

	fiberContext := s.builder.Build(res.Matches)
	var knowledgeContext string
	if s.knowledge != nil {
		knowledgeContext = s.knowledge.KnowledgeContext(ctx, req.Query, fiberIDs(res.Matches))
	}

	system, err := s.prompts.Render(prompt.SystemTemplateName,
		prompt.NewSystemData(req.Profile, history, fiberContext, knowledgeContext))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render system prompt: %w", err)
	}

	msgs := make([]*message.Message, 0, len(history)+2)
	msgs = append(msgs, message.NewMessage(message.RoleSystem, system))
	msgs = append(msgs, history...)
	msgs = append(msgs, message.NewMessage(message.RoleUser, req.Query))

	reply, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("completion failed: %w", err)
	}
	if reply == nil {
		return nil, nil, fmt.Errorf("completion returned no message: %w", errorskg.ErrInternal)
	}

	resp := &Response{
		ConversationID: convID,
		Matches:        res.Matches,
		Intent:         res.Intent,
		Strategy:       res.Strategy,
	}
	if res.Intent.NeedsImages {
		resp.Images = fiber.StructureImages(res.Matches, res.Intent.Entities.FiberName)
	}
	s.logger.Debug("turn grounded",
		"conversation", convID,
		"strategy", res.Strategy,
		"matches", len(res.Matches),
		"knowledge", knowledgeContext != "")
	return resp, reply, nil
}

// conversation resolves the conversation id and its recent turns.
func (s *Service) conversation(ctx context.Context, req Request, fresh *session.Record) (string, []*message.Message, error) {
	if fresh != nil {
		return fresh.ID, nil, nil
	}
	rec, err := s.sessions.Get(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, errorskg.ErrNotFound) {
			return "", nil, fmt.Errorf("conversation %s: %w", req.ConversationID, err)
		}
		return "", nil, err
	}
	if rec.UserID != req.UserID {
		return "", nil, fmt.Errorf("conversation %s belongs to another user: %w", req.ConversationID, errorskg.ErrNotFound)
	}
	return rec.ID, rec.Tail(s.historyWindow), nil
}

func fiberIDs(matches []fiber.Match) []int64 {
	var ids []int64
	for _, m := range matches {
		if m.Fiber != nil {
			ids = append(ids, m.Fiber.ID)
		}
	}
	return ids
}
