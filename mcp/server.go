package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/kb"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/rag/intent"
	"github.com/sweetpotato0/fiberkb/rag/retrieval"
)

// Tool names exposed by the server.
const (
	ToolSearchFibers    = "search_fibers"
	ToolSearchDocuments = "search_documents"
	ToolDetectIntent    = "detect_intent"
	ToolClearCache      = "clear_cache"
)

// FiberSearcher runs hybrid fiber search.
type FiberSearcher interface {
	SearchFibers(ctx context.Context, query string, f retrieval.Filter) ([]fiber.Match, error)
}

// DocumentSearcher runs knowledge-base search.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, f kb.Filter) ([]kb.Match, error)
}

// IntentDetector classifies questions.
type IntentDetector interface {
	Detect(ctx context.Context, query string) (intent.Intent, error)
}

// CacheInvalidator drops the fiber-name vocabulary.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Backends are the services behind the tools. A nil backend leaves its tool unregistered.
type Backends struct {
	Fibers     FiberSearcher
	Documents  DocumentSearcher
	Intents    IntentDetector
	Vocabulary CacheInvalidator
}

// NewServer builds the fiber knowledge-base tool server.
func NewServer(name, version string, b Backends) *sdkmcp.Server {
	if name == "" {
		name = "fiberkb"
	}
	if version == "" {
		version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    name,
		Version: version,
		Title:   "Fiber knowledge base",
	}, nil)

	h := &handlers{Backends: b, logger: logging.WithComponent("mcp_server")}
	if b.Fibers != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        ToolSearchFibers,
			Description: "Search the fiber database by meaning, falling back to keyword matching",
		}, h.searchFibers)
	}
	if b.Documents != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        ToolSearchDocuments,
			Description: "Search knowledge-base documents by meaning, falling back to keyword matching",
		}, h.searchDocuments)
	}
	if b.Intents != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        ToolDetectIntent,
			Description: "Classify a fiber question and extract the fiber it names",
		}, h.detectIntent)
	}
	if b.Vocabulary != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        ToolClearCache,
			Description: "Drop the cached fiber-name vocabulary so new fibers are recognized",
		}, h.clearCache)
	}
	return server
}

type handlers struct {
	Backends
	logger *slog.Logger
}

type searchFibersArgs struct {
	Query           string  `json:"query" jsonschema:"Question or fiber name to search for"`
	Threshold       float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity, defaults to the engine threshold"`
	Limit           int     `json:"limit,omitempty" jsonschema:"Maximum number of fibers"`
	IncludeInactive bool    `json:"include_inactive,omitempty" jsonschema:"Also return inactive fibers"`
	FiberIDs        []int64 `json:"fiber_ids,omitempty" jsonschema:"Restrict the search to these internal fiber ids"`
}

// FiberHit is one search_fibers result.
type FiberHit struct {
	ID          int64   `json:"id"`
	FiberID     string  `json:"fiber_id"`
	Name        string  `json:"name"`
	Class       string  `json:"class,omitempty"`
	Subtype     string  `json:"subtype,omitempty"`
	ContentType string  `json:"content_type"`
	Similarity  float64 `json:"similarity"`
	MatchedText string  `json:"matched_text,omitempty"`
}

func (h *handlers) searchFibers(ctx context.Context, _ *sdkmcp.CallToolRequest, a searchFibersArgs) (*sdkmcp.CallToolResult, any, error) {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required: %w", errorskg.ErrInvalidInput)
	}
	matches, err := h.Fibers.SearchFibers(ctx, query, retrieval.Filter{
		Scope:     fiber.Scope{IncludeInactive: a.IncludeInactive, FiberIDs: a.FiberIDs},
		Threshold: a.Threshold,
		Limit:     a.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	hits := make([]FiberHit, 0, len(matches))
	for _, m := range matches {
		if m.Fiber == nil {
			continue
		}
		hits = append(hits, FiberHit{
			ID:          m.Fiber.ID,
			FiberID:     m.Fiber.FiberID,
			Name:        m.Fiber.Name,
			Class:       m.Fiber.LookupName(fiber.KindClass),
			Subtype:     m.Fiber.LookupName(fiber.KindSubtype),
			ContentType: string(m.ContentType),
			Similarity:  m.Similarity,
			MatchedText: m.MatchedText,
		})
	}
	h.logger.Debug("search_fibers", "query", query, "hits", len(hits))
	return jsonResult(hits)
}

type searchDocumentsArgs struct {
	Query         string  `json:"query" jsonschema:"Question to search the knowledge base for"`
	Category      string  `json:"category,omitempty" jsonschema:"Only documents of this category"`
	FiberIDs      []int64 `json:"fiber_ids,omitempty" jsonschema:"Only documents related to at least one of these fibers"`
	PublishedOnly bool    `json:"published_only,omitempty" jsonschema:"Skip unpublished documents"`
	Threshold     float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity"`
	Limit         int     `json:"limit,omitempty" jsonschema:"Maximum number of chunks"`
}

// DocumentHit is one search_documents result.
type DocumentHit struct {
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title"`
	Category   string  `json:"category,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text"`
}

func (h *handlers) searchDocuments(ctx context.Context, _ *sdkmcp.CallToolRequest, a searchDocumentsArgs) (*sdkmcp.CallToolResult, any, error) {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required: %w", errorskg.ErrInvalidInput)
	}
	matches, err := h.Documents.Search(ctx, query, kb.Filter{
		PublishedOnly: a.PublishedOnly,
		Category:      a.Category,
		FiberIDs:      a.FiberIDs,
		Threshold:     a.Threshold,
		Limit:         a.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	hits := make([]DocumentHit, 0, len(matches))
	for _, m := range matches {
		if m.Document == nil {
			continue
		}
		hits = append(hits, DocumentHit{
			DocumentID: m.Document.ID,
			Title:      m.Document.Title,
			Category:   m.Document.Category,
			ChunkIndex: m.ChunkIndex,
			Similarity: m.Similarity,
			Text:       m.ChunkText,
		})
	}
	h.logger.Debug("search_documents", "query", query, "hits", len(hits))
	return jsonResult(hits)
}

type detectIntentArgs struct {
	Query string `json:"query" jsonschema:"Question to classify"`
}

// IntentReport is the detect_intent result.
type IntentReport struct {
	intent.Intent
	Listing bool `json:"listing"`
}

func (h *handlers) detectIntent(ctx context.Context, _ *sdkmcp.CallToolRequest, a detectIntentArgs) (*sdkmcp.CallToolResult, any, error) {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required: %w", errorskg.ErrInvalidInput)
	}
	in, err := h.Intents.Detect(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(IntentReport{Intent: in, Listing: intent.IsListingQuery(query)})
}

type clearCacheArgs struct{}

func (h *handlers) clearCache(ctx context.Context, _ *sdkmcp.CallToolRequest, _ clearCacheArgs) (*sdkmcp.CallToolResult, any, error) {
	if err := h.Vocabulary.Invalidate(ctx); err != nil {
		return nil, nil, err
	}
	h.logger.Info("fiber vocabulary cleared")
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "fiber vocabulary cache cleared"}},
	}, nil, nil
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
