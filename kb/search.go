package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

const (
	// DefaultThreshold and DefaultLimit apply to SearchDocuments.
	DefaultThreshold = 0.6
	DefaultLimit     = 5

	// ContextThreshold and ContextLimit are the KnowledgeContext defaults.
	ContextThreshold = 0.5
	ContextLimit     = 3

	// KeywordScore is assigned to keyword-only document hits.
	KeywordScore = 0.75

	snippetSize = 800

	contextHeader  = "\n=== Knowledge Base Information ===\n"
	contextTrailer = "\nUse the above knowledge base information to provide accurate, detailed answers.\n"
)

// Searcher answers queries against document chunks.
type Searcher struct {
	store            Store
	embedder         vector.Embedder
	contextThreshold float64
	contextLimit     int
	logger           *slog.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithContextLimits overrides the threshold and limit used by KnowledgeContext.
// Non-positive values keep the defaults.
func WithContextLimits(threshold float64, limit int) SearcherOption {
	return func(s *Searcher) {
		if threshold > 0 {
			s.contextThreshold = threshold
		}
		if limit > 0 {
			s.contextLimit = limit
		}
	}
}

// NewSearcher wires a searcher. A nil embedder restricts it to keyword search.
func NewSearcher(store Store, embedder vector.Embedder, opts ...SearcherOption) *Searcher {
	if embedder == nil {
		embedder = vector.Unavailable(0, "no embedder configured")
	}
	s := &Searcher{
		store:            store,
		embedder:         embedder,
		contextThreshold: ContextThreshold,
		contextLimit:     ContextLimit,
		logger:           logging.WithComponent("kb_search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the best chunk per matching document, ordered by similarity.
// When the query cannot be embedded, or the vector query fails, it falls back to
// a keyword match over title, content and tags.
func (s *Searcher) Search(ctx context.Context, query string, f Filter) (matches []Match, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "kb.Search")
	defer func() { telemetry.End(span, err) }()

	if f.Threshold <= 0 {
		f.Threshold = DefaultThreshold
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	matches, semErr := s.semantic(ctx, query, f)
	if semErr == nil {
		span.SetAttributes(attribute.String("strategy", "semantic"), attribute.Int("matches", len(matches)))
		return matches, nil
	}
	s.logger.Warn("semantic document search failed, using keyword search", "error", semErr)
	telemetry.Degraded(span, "keyword_fallback", semErr)

	q := keyword.Build(query)
	docs, err := s.store.KeywordDocuments(ctx, q, f)
	if err != nil {
		return nil, fmt.Errorf("%w: semantic: %v; keyword: %v", errorskg.ErrRetrievalFailed, semErr, err)
	}
	for _, d := range docs {
		if len(matches) == f.Limit {
			break
		}
		matches = append(matches, Match{Document: d, ChunkText: Snippet(d.Content, q.Variants, snippetSize), Similarity: KeywordScore})
	}
	span.SetAttributes(attribute.String("strategy", "keyword"), attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Searcher) semantic(ctx context.Context, query string, f Filter) ([]Match, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := vector.CheckDimension(vec, s.embedder.Dimension()); err != nil {
		return nil, err
	}
	return s.store.NearestChunks(ctx, vec, f)
}

// KnowledgeContext formats the top published chunks for query as a prompt section.
// It returns "" when nothing relevant is found; search failures are logged and
// also yield "" so the answer path keeps working.
func (s *Searcher) KnowledgeContext(ctx context.Context, query string, fiberIDs []int64) string {
	matches, err := s.Search(ctx, query, Filter{
		PublishedOnly: true,
		FiberIDs:      fiberIDs,
		Threshold:     s.contextThreshold,
		Limit:         s.contextLimit,
	})
	if err != nil {
		s.logger.Warn("knowledge context unavailable", "error", err)
		return ""
	}
	return FormatContext(matches)
}

// FormatContext renders matches as the knowledge base prompt section.
func FormatContext(matches []Match) string {
	if len(matches) == 0 {
		return ""
	}
	parts := []string{contextHeader}
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("\n**Source %d: %s**", i+1, m.Document.Title))
		if m.Document.Category != "" {
			parts = append(parts, "Category: "+m.Document.Category)
		}
		parts = append(parts, fmt.Sprintf("Relevance: %.2f", m.Similarity))
		parts = append(parts, "\n"+m.ChunkText+"\n")
	}
	parts = append(parts, contextTrailer)
	return strings.Join(parts, "\n")
}

// Snippet cuts a window of at most size runes from content around the first
// occurrence of any variant, or from the start when none occurs.
func Snippet(content string, variants []string, size int) string {
	runes := []rune(content)
	if len(runes) <= size {
		return content
	}
	// lowered rune by rune so indexes line up with runes
	lower := lowerRunes(content)
	start := 0
	for _, v := range variants {
		if idx := runeIndex(lower, lowerRunes(v)); idx >= 0 {
			start = max(0, idx-size/4)
			break
		}
	}
	end := min(len(runes), start+size)
	start = max(0, end-size)
	return string(runes[start:end])
}

func lowerRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, errorskg.ErrDocumentNotFound)
}
