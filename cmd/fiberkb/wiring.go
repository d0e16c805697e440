package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/redis/go-redis/v9"

	cacheredis "github.com/sweetpotato0/fiberkb/contrib/cache/redis"
	embedopenai "github.com/sweetpotato0/fiberkb/contrib/embedder/openai"
	"github.com/sweetpotato0/fiberkb/contrib/provider"
	"github.com/sweetpotato0/fiberkb/contrib/provider/claude"
	"github.com/sweetpotato0/fiberkb/contrib/provider/gemini"
	provideropenai "github.com/sweetpotato0/fiberkb/contrib/provider/openai"
	sessionmem "github.com/sweetpotato0/fiberkb/contrib/session/inmemory"
	"github.com/sweetpotato0/fiberkb/contrib/store/inmemory"
	"github.com/sweetpotato0/fiberkb/contrib/store/pg"
	"github.com/sweetpotato0/fiberkb/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/importer"
	"github.com/sweetpotato0/fiberkb/kb"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/rag/category"
	"github.com/sweetpotato0/fiberkb/rag/contextbuilder"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/retrieval"
	"github.com/sweetpotato0/fiberkb/session"
	sessionstore "github.com/sweetpotato0/fiberkb/session/store"
	"github.com/sweetpotato0/fiberkb/vector"
)

// backend is the storage surface both store implementations provide.
type backend interface {
	fiber.Store
	fiber.EmbeddingStore
	retrieval.Index
	category.Store
	kb.Store
	importer.Store
}

// app holds the components wired from configuration.
type app struct {
	store      backend
	embedder   vector.Embedder
	vocabulary *intent.Vocabulary
	engine     *retrieval.Engine
	documents  *kb.Searcher
	indexer    *kb.Indexer
	sessions   *session.Manager

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (g *globals) build(ctx context.Context) (*app, error) {
	cfg := g.cfg
	a := &app{}
	a.embedder = embedopenai.New(cfg.Embedding.APIKey, cfg.Embedding.BaseURL,
		openaisdk.EmbeddingModel(cfg.Embedding.Model), cfg.Embedding.Dimension)

	switch g.store {
	case storeMemory:
		a.store = inmemory.New(inmemory.WithDimension(cfg.Embedding.Dimension))
	case storePostgres:
		store, err := pg.New(ctx, cfg.Postgres, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", g.store, storePostgres, storeMemory)
	}

	var (
		cache         intent.Cache = intent.NewMemoryCache()
		conversations session.Store
	)
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		cache = cacheredis.New(client, cfg.Redis.Prefix)
		conversations = sessionstore.NewRedisStore(client, cfg.Redis.Prefix+"conversation:", 0)
	} else {
		conversations = sessionmem.NewStore()
	}
	a.vocabulary = intent.NewVocabulary(a.store, cache)
	a.sessions = session.NewManager(conversations)

	r := cfg.Retrieval
	a.engine = retrieval.New(a.store, a.embedder,
		intent.NewDetector(a.vocabulary),
		category.NewResolver(a.store, category.WithLimit(r.SearchLimit)),
		retrieval.WithThreshold(r.FiberThreshold),
		retrieval.WithLimit(r.SearchLimit),
		retrieval.WithSparseBelow(r.SparseThreshold),
		retrieval.WithFallbackScore(r.FallbackScore),
		retrieval.WithHistoryWindow(r.HistoryWindow),
	)
	a.documents = kb.NewSearcher(a.store, a.embedder, kb.WithContextLimits(r.DocumentThreshold, r.KnowledgeLimit))
	a.indexer = kb.NewIndexer(a.store, a.embedder, kb.WithModel(cfg.Embedding.Model))

	if g.seed != "" {
		if g.store != storeMemory {
			_ = a.Close()
			return nil, fmt.Errorf("--seed only applies to the memory store")
		}
		report, err := importer.New(a.store, importer.WithVocabulary(a.vocabulary)).ImportFile(ctx, g.seed)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		logging.Logger().Info("memory store seeded", "fibers", report.Created)
	}
	return a, nil
}

// contextBuilder bounds the fiber context with a tiktoken budget, falling back to
// the word-count tokenizer when the encoding cannot be loaded.
func (g *globals) contextBuilder() *contextbuilder.Builder {
	budget := g.cfg.Retrieval.ContextTokenBudget
	tok, err := tiktoken.NewTiktokenTokenizer(g.cfg.Chat.Model)
	if err != nil {
		logging.Logger().Warn("tiktoken unavailable, using word counts", "model", g.cfg.Chat.Model, "error", err)
		return contextbuilder.New(contextbuilder.WithTokenBudget(nil, budget))
	}
	return contextbuilder.New(contextbuilder.WithTokenBudget(tok, budget))
}

// completer returns the configured chat provider and a function releasing it.
func (g *globals) completer(ctx context.Context) (provider.Completer, func() error, error) {
	c := g.cfg.Chat
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, nil, fmt.Errorf("no API key configured for chat provider %q", c.Provider)
	}
	pc := provider.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		MaxTokens:   int64(c.MaxTokens),
		Temperature: c.Temperature,
	}
	noop := func() error { return nil }
	switch c.Provider {
	case "anthropic":
		return claude.New(pc), noop, nil
	case "gemini":
		p, err := gemini.New(ctx, pc)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return provideropenai.New(pc), noop, nil
	}
}
