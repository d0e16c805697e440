// Package retrieval composes category resolution, semantic search and keyword search
// into one ranked, deduplicated fiber candidate list.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/rag/category"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

// Index is the fiber search surface of the store.
type Index interface {
	// NearestFibers returns the best embedding per fiber with similarity >= threshold,
	// scope filters applied before ranking, ordered by similarity descending.
	NearestFibers(ctx context.Context, query []float32, scope fiber.Scope, threshold float64, limit int) ([]fiber.Match, error)
	KeywordFibers(ctx context.Context, q keyword.Query, scope fiber.Scope, limit int) ([]*fiber.Record, error)
}

// Strategy names the path that produced a result.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyCategory Strategy = "category"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
	StrategyKeyword  Strategy = "keyword"
)

// Result is the outcome of one retrieval.
type Result struct {
	Intent intent.Intent
	// Query is the search string actually used, including a carried-forward fiber name.
	Query    string
	Strategy Strategy
	Matches  []fiber.Match
	Category *category.Result
}

// Engine is the hybrid retrieval orchestrator.
type Engine struct {
	index    Index
	embedder vector.Embedder
	detector *intent.Detector
	resolver *category.Resolver
	opts     Options
	logger   *slog.Logger
}

// New wires an engine.
func New(index Index, embedder vector.Embedder, detector *intent.Detector, resolver *category.Resolver, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if detector == nil {
		detector = intent.NewDetector(nil)
	}
	return &Engine{
		index:    index,
		embedder: embedder,
		detector: detector,
		resolver: resolver,
		opts:     o,
		logger:   logging.WithComponent("retrieval"),
	}
}

// Options returns the effective tuning.
func (e *Engine) Options() Options { return e.opts }

// Retrieve runs the full state machine for one user query:
// intent gate, category short-circuit for listing queries, history carry-forward,
// then semantic search with keyword supplement.
func (e *Engine) Retrieve(ctx context.Context, query string, history []*message.Message) (res *Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "retrieval.Retrieve")
	defer func() { telemetry.End(span, err) }()

	in := e.detect(ctx, query)
	res = &Result{Intent: in, Query: query, Strategy: StrategyNone}
	span.SetAttributes(attribute.String("intent.kind", string(in.Kind)))

	if !in.RequiresSearch {
		return res, nil
	}

	if intent.IsListingQuery(query) && e.resolver != nil {
		cat, err := e.resolver.Resolve(ctx, query)
		switch {
		case err != nil:
			e.logger.Warn("category resolution failed", "error", err)
		case cat != nil:
			res.Strategy = StrategyCategory
			res.Category = cat
			res.Matches = make([]fiber.Match, 0, len(cat.Fibers))
			for _, rec := range cat.Fibers {
				res.Matches = append(res.Matches, fiber.Match{
					Fiber:       rec,
					ContentType: fiber.ContentCategory,
					Similarity:  1.0,
					MatchedText: cat.Label,
				})
			}
			span.SetAttributes(attribute.Int("matches", len(res.Matches)))
			return res, nil
		}
	}

	if in.Entities.FiberName == "" && len(history) > 0 {
		window := message.Tail(history, e.opts.HistoryWindow)
		carried := e.detect(ctx, message.JoinContent(window))
		if name := carried.Entities.FiberName; name != "" {
			res.Query = name + " " + query
			e.logger.Debug("fiber carried forward from history", "fiber", name)
		}
	}

	matches, strategy, err := e.search(ctx, res.Query, fiber.Scope{}, e.opts.Threshold, e.opts.Limit)
	if err != nil {
		return nil, err
	}
	res.Matches = matches
	res.Strategy = strategy
	span.SetAttributes(attribute.String("strategy", string(strategy)), attribute.Int("matches", len(matches)))
	return res, nil
}

// Filter narrows a direct fiber search.
type Filter struct {
	Scope fiber.Scope
	// Threshold and Limit fall back to the engine options when zero.
	Threshold float64
	Limit     int
}

// SearchFibers runs semantic search with the keyword supplement, without intent gating.
func (e *Engine) SearchFibers(ctx context.Context, query string, f Filter) (matches []fiber.Match, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "retrieval.SearchFibers")
	defer func() { telemetry.End(span, err) }()

	th := f.Threshold
	if th <= 0 {
		th = e.opts.Threshold
	}
	limit := f.Limit
	if limit <= 0 {
		limit = e.opts.Limit
	}
	matches, _, err = e.search(ctx, query, f.Scope, th, limit)
	return matches, err
}

func (e *Engine) detect(ctx context.Context, text string) intent.Intent {
	in, err := e.detector.Detect(ctx, text)
	if err != nil {
		e.logger.Warn("fiber vocabulary unavailable, using built-in names", "error", err)
		return intent.Classify(text, intent.CommonFibers)
	}
	return in
}

// search returns semantic hits first (by descending similarity) followed by keyword
// hits not already present, each scored with the fallback score.
func (e *Engine) search(ctx context.Context, query string, scope fiber.Scope, threshold float64, limit int) ([]fiber.Match, Strategy, error) {
	semantic, semErr := e.semantic(ctx, query, scope, threshold, limit)
	if semErr == nil && len(semantic) >= e.opts.SparseBelow {
		return semantic, StrategySemantic, nil
	}

	records, kwErr := e.index.KeywordFibers(ctx, keyword.Build(query), scope, limit)
	if kwErr != nil {
		if semErr != nil {
			return nil, StrategyNone, fmt.Errorf("%w: semantic: %v; keyword: %v", errorskg.ErrRetrievalFailed, semErr, kwErr)
		}
		e.logger.Warn("keyword supplement failed", "error", kwErr)
		return semantic, StrategySemantic, nil
	}

	merged := Merge(semantic, records, e.opts.FallbackScore)
	strategy := StrategyHybrid
	if semErr != nil {
		strategy = StrategyKeyword
	}
	e.logger.Debug("keyword supplement", "semantic", len(semantic), "keyword", len(records), "merged", len(merged))
	return merged, strategy, nil
}

// semantic embeds the query and runs the nearest-neighbour query. Both failure kinds
// are logged and returned so the caller can fall back to keyword search.
func (e *Engine) semantic(ctx context.Context, query string, scope fiber.Scope, threshold float64, limit int) ([]fiber.Match, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, errorskg.ErrEmbeddingUnavailable) {
			e.logger.Warn("embedding unavailable, keyword search only", "error", err)
		} else {
			e.logger.Warn("query embedding failed, keyword search only", "error", err)
		}
		telemetry.Degraded(trace.SpanFromContext(ctx), "embedding", err)
		return nil, err
	}
	matches, err := e.index.NearestFibers(ctx, vec, scope, threshold, limit)
	if err != nil {
		e.logger.Warn("vector query failed, falling back to keyword search", "error", err)
		telemetry.Degraded(trace.SpanFromContext(ctx), "vector_query", err)
		return nil, err
	}
	return matches, nil
}

// Merge keeps all semantic matches and appends keyword records whose id is not present yet.
func Merge(semantic []fiber.Match, keywordHits []*fiber.Record, fallbackScore float64) []fiber.Match {
	out := make([]fiber.Match, 0, len(semantic)+len(keywordHits))
	seen := make(map[int64]struct{}, len(semantic)+len(keywordHits))
	for _, m := range semantic {
		if _, ok := seen[m.Fiber.ID]; ok {
			continue
		}
		seen[m.Fiber.ID] = struct{}{}
		out = append(out, m)
	}
	for _, rec := range keywordHits {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		out = append(out, fiber.Match{
			Fiber:       rec,
			ContentType: fiber.ContentKeyword,
			Similarity:  fallbackScore,
		})
	}
	return out
}
