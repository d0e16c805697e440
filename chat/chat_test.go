package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sessionmem "github.com/sweetpotato0/fiberkb/contrib/session/inmemory"
	"github.com/sweetpotato0/fiberkb/contrib/store/inmemory"
	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/middleware"
	"github.com/sweetpotato0/fiberkb/middleware/limiter"
	"github.com/sweetpotato0/fiberkb/middleware/validator"
	"github.com/sweetpotato0/fiberkb/prompt"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/retrieval"
	"github.com/sweetpotato0/fiberkb/session"
)

type stubCompleter struct {
	reply string
	err   error
	calls [][]*message.Message
}

func (s *stubCompleter) Complete(_ context.Context, msgs []*message.Message) (*message.Message, error) {
	s.calls = append(s.calls, msgs)
	if s.err != nil {
		return nil, s.err
	}
	return message.NewMessage(message.RoleAssistant, s.reply), nil
}

type stubRetriever struct {
	result    *retrieval.Result
	err       error
	histories [][]*message.Message
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, history []*message.Message) (*retrieval.Result, error) {
	s.histories = append(s.histories, history)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubKnowledge struct {
	ids [][]int64
}

func (s *stubKnowledge) KnowledgeContext(_ context.Context, _ string, ids []int64) string {
	s.ids = append(s.ids, ids)
	return "KB NOTES"
}

var cotton = &fiber.Record{
	ID:                7,
	FiberID:           "cotton",
	Name:              "Cotton",
	IsActive:          true,
	StructureImageURL: "https://img.example/cotton.png",
}

func cottonResult(needsImages bool) *retrieval.Result {
	return &retrieval.Result{
		Intent: intent.Intent{
			Kind:           intent.StructureImageRequest,
			Entities:       intent.Entities{FiberName: "cotton"},
			RequiresSearch: true,
			NeedsImages:    needsImages,
		},
		Strategy: retrieval.StrategySemantic,
		Matches:  []fiber.Match{{Fiber: cotton, ContentType: fiber.ContentBasicInfo, Similarity: 0.9}},
	}
}

func newSessions() *session.Manager {
	return session.NewManager(sessionmem.NewStore())
}

func TestAnswerGroundsAndRecordsTurn(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{reply: "Cotton is a cellulose seed fiber."}
	knowledge := &stubKnowledge{}
	sessions := newSessions()
	svc := New(&stubRetriever{result: cottonResult(true)}, completer, sessions, WithKnowledge(knowledge))

	resp, err := svc.Answer(ctx, Request{UserID: "u1", Query: "show me the structure of cotton",
		Profile: prompt.Profile{ClientType: "student"}})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.ConversationID == "" || resp.Answer != "Cotton is a cellulose seed fiber." {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Images) != 1 || resp.Images[0].ImageURL != cotton.StructureImageURL {
		t.Fatalf("expected the cotton structure image, got %+v", resp.Images)
	}
	if len(knowledge.ids) != 1 || len(knowledge.ids[0]) != 1 || knowledge.ids[0][0] != 7 {
		t.Fatalf("knowledge context not scoped to the retrieved fibers: %v", knowledge.ids)
	}

	msgs := completer.calls[0]
	if len(msgs) != 2 || msgs[0].Role != message.RoleSystem || msgs[1].Content != "show me the structure of cotton" {
		t.Fatalf("unexpected completion input: %+v", msgs)
	}
	system := msgs[0].Content
	for _, want := range []string{"school student", "Role: Student", "1. **Cotton**", "KB NOTES"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}

	history, err := sessions.History(ctx, resp.ConversationID, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 || history[0].Role != message.RoleUser || history[1].Content != resp.Answer {
		t.Fatalf("turn not recorded: %+v", history)
	}
}

func TestAnswerReplaysHistory(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{reply: "ok"}
	retriever := &stubRetriever{result: cottonResult(false)}
	svc := New(retriever, completer, newSessions())

	first, err := svc.Answer(ctx, Request{UserID: "u1", Query: "what is cotton?"})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	second, err := svc.Answer(ctx, Request{ConversationID: first.ConversationID, UserID: "u1", Query: "and its density?"})
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("expected the same conversation")
	}
	if second.Images != nil {
		t.Fatalf("no images were requested: %+v", second.Images)
	}
	if got := retriever.histories[1]; len(got) != 2 || got[0].Content != "what is cotton?" {
		t.Fatalf("retriever did not see the history: %+v", got)
	}
	msgs := completer.calls[1]
	if len(msgs) != 4 || msgs[1].Content != "what is cotton?" || msgs[3].Content != "and its density?" {
		t.Fatalf("unexpected completion input: %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "RECENT CONVERSATION TOPICS:\n  - what is cotton?") {
		t.Fatalf("expected recent topics in the system prompt:\n%s", msgs[0].Content)
	}
}

func TestAnswerRejectsForeignConversation(t *testing.T) {
	ctx := context.Background()
	svc := New(&stubRetriever{result: cottonResult(false)}, &stubCompleter{reply: "ok"}, newSessions())

	first, err := svc.Answer(ctx, Request{UserID: "u1", Query: "what is cotton?"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	_, err = svc.Answer(ctx, Request{ConversationID: first.ConversationID, UserID: "u2", Query: "hi"})
	if !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = svc.Answer(ctx, Request{ConversationID: "missing", UserID: "u1", Query: "hi"})
	if !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown conversation, got %v", err)
	}
}

func TestAnswerDegradesWhenRetrievalFails(t *testing.T) {
	completer := &stubCompleter{reply: "I'm a textile and fiber expert."}
	svc := New(&stubRetriever{err: errorskg.ErrRetrievalFailed}, completer, newSessions())

	resp, err := svc.Answer(context.Background(), Request{UserID: "u1", Query: "tell me about wool"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Strategy != retrieval.StrategyNone || len(resp.Matches) != 0 {
		t.Fatalf("expected an ungrounded answer, got %+v", resp)
	}
	if strings.Contains(completer.calls[0][0].Content, "Here is relevant information") {
		t.Fatal("no fiber context expected")
	}
}

func TestAnswerCompletionFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	sessions := newSessions()
	boom := errors.New("upstream down")
	svc := New(&stubRetriever{result: cottonResult(false)}, &stubCompleter{err: boom}, sessions)

	rec, err := sessions.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := svc.Answer(ctx, Request{ConversationID: rec.ID, UserID: "u1", Query: "what is cotton?"}); !errors.Is(err, boom) {
		t.Fatalf("expected completion error, got %v", err)
	}
	history, err := sessions.History(ctx, rec.ID, 0)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected no recorded turns, got %d (%v)", len(history), err)
	}
}

func TestAnswerFailedFirstTurnStoresNoConversation(t *testing.T) {
	ctx := context.Background()
	store := sessionmem.NewStore()
	boom := errors.New("upstream down")
	svc := New(&stubRetriever{result: cottonResult(false)}, &stubCompleter{err: boom}, session.NewManager(store))

	if _, err := svc.Answer(ctx, Request{UserID: "u1", Query: "what is cotton?"}); !errors.Is(err, boom) {
		t.Fatalf("expected completion error, got %v", err)
	}
	ids, err := store.List(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no stored conversations, got %v (%v)", ids, err)
	}

	svc = New(&stubRetriever{result: cottonResult(false)}, &stubCompleter{reply: "ok"}, session.NewManager(store))
	resp, err := svc.Answer(ctx, Request{UserID: "u1", Query: "what is cotton?"})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	ids, _ = store.List(ctx)
	if len(ids) != 1 || ids[0] != resp.ConversationID {
		t.Fatalf("stored conversations = %v, want [%s]", ids, resp.ConversationID)
	}
}

func TestAnswerMiddleware(t *testing.T) {
	ctx := context.Background()
	completer := &stubCompleter{reply: "  padded answer \n"}
	var seen []string
	tag := middleware.NewFunc("tag", func(c *middleware.Context, next middleware.Handler) error {
		err := next(c)
		seen = append(seen, c.ConversationID)
		return err
	})
	svc := New(&stubRetriever{result: cottonResult(false)}, completer, newSessions(), WithMiddleware(
		validator.NewQueryValidator(50),
		limiter.NewRateLimiter(1, time.Hour),
		validator.NewResponseFilter(validator.TrimResponse),
		tag,
	))

	if _, err := svc.Answer(ctx, Request{UserID: "u1", Query: "   "}); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(completer.calls) != 0 {
		t.Fatal("invalid input reached the completer")
	}

	resp, err := svc.Answer(ctx, Request{UserID: "u1", Query: "  what is cotton?  "})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.Answer != "padded answer" {
		t.Fatalf("response filter not applied: %q", resp.Answer)
	}
	if completer.calls[0][1].Content != "what is cotton?" {
		t.Fatalf("validator did not trim the query: %q", completer.calls[0][1].Content)
	}
	if len(seen) != 1 || seen[0] != resp.ConversationID {
		t.Fatalf("middleware did not see the conversation id: %v", seen)
	}

	if _, err := svc.Answer(ctx, Request{UserID: "u1", Query: "again"}); !errors.Is(err, middleware.ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 2 }

func TestAnswerWithEngine(t *testing.T) {
	ctx := context.Background()
	store := inmemory.New()
	rec := *cotton
	rec.ID = 0
	id, _, err := store.UpsertFiber(ctx, &rec)
	if err != nil {
		t.Fatalf("UpsertFiber failed: %v", err)
	}
	if err := store.UpsertEmbedding(ctx, fiber.Embedding{FiberID: id, ContentType: fiber.ContentBasicInfo, Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	engine := retrieval.New(store, constEmbedder{}, intent.NewDetector(intent.NewVocabulary(store, nil)), nil)
	svc := New(engine, &stubCompleter{reply: "Here is its structure."}, newSessions())

	resp, err := svc.Answer(ctx, Request{UserID: "u1", Query: "show me the structure of cotton"})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if !resp.Intent.NeedsImages || len(resp.Matches) != 1 || resp.Matches[0].Fiber.ID != id {
		t.Fatalf("unexpected retrieval: %+v", resp)
	}
	if len(resp.Images) != 1 || resp.Images[0].FiberName != "Cotton" {
		t.Fatalf("expected cotton image, got %+v", resp.Images)
	}
}
