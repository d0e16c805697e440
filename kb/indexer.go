package kb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/rag/chunking"
	"github.com/sweetpotato0/fiberkb/rag/preprocess"
	"github.com/sweetpotato0/fiberkb/vector"
)

// NewDocument is the input of Create.
type NewDocument struct {
	Title       string
	Content     string
	Category    string
	Subcategory string
	Tags        []string
	FiberIDs    []int64
	IsPublished bool
	Actor       string
}

// Patch is the input of Update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Content     *string
	Category    *string
	Subcategory *string
	Tags        *[]string
	FiberIDs    *[]int64
	IsPublished *bool
	Actor       string
}

// Indexer writes documents together with their chunk embeddings.
type Indexer struct {
	store    Store
	embedder vector.Embedder
	chunker  *chunking.Chunker
	model    string
	logger   *slog.Logger
}

// IndexerOption customizes the indexer.
type IndexerOption func(*Indexer)

// WithChunker overrides the default 800/200 chunker.
func WithChunker(c *chunking.Chunker) IndexerOption {
	return func(ix *Indexer) {
		if c != nil {
			ix.chunker = c
		}
	}
}

// WithModel records the embedding model name next to each chunk.
func WithModel(model string) IndexerOption {
	return func(ix *Indexer) {
		ix.model = model
	}
}

// NewIndexer wires an indexer.
func NewIndexer(store Store, embedder vector.Embedder, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		store:    store,
		embedder: embedder,
		chunker:  chunking.New(),
		logger:   logging.WithComponent("kb_indexer"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Create stores a document, its chunk embeddings and a "created" audit entry in one
// transaction. Chunks are embedded before the transaction opens; an embedding failure
// leaves nothing behind.
func (ix *Indexer) Create(ctx context.Context, in NewDocument) (doc *Document, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "kb.Create")
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("title and content are required: %w", errorskg.ErrInvalidInput)
	}

	chunks, err := ix.embedChunks(ctx, in.Content)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	doc = &Document{
		Title:       in.Title,
		Content:     in.Content,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Tags:        in.Tags,
		FiberIDs:    in.FiberIDs,
		IsPublished: in.IsPublished,
		CreatedBy:   in.Actor,
		UpdatedBy:   in.Actor,
	}
	err = ix.store.WithinTx(ctx, func(tx Tx) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		doc.ID = id
		if err := tx.InsertChunks(ctx, id, chunks); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return tx.AppendAudit(ctx, AuditEntry{
			DocumentID:  &id,
			Action:      ActionCreated,
			PerformedBy: in.Actor,
			Changes:     map[string]any{"title": in.Title, "category": in.Category},
		})
	})
	if err != nil {
		return nil, err
	}
	ix.logger.Info("document created", "id", doc.ID, "title", doc.Title, "chunks", len(chunks))
	return doc, nil
}

// Update applies patch. Only a content change replaces the chunk set (all old chunks
// deleted, all new ones inserted); other fields never touch embeddings. Every changed
// field is audited as {old, new}, content as lengths only.
func (ix *Indexer) Update(ctx context.Context, id int64, patch Patch) (doc *Document, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "kb.Update")
	span.SetAttributes(attribute.Int64("document.id", id))
	defer func() { telemetry.End(span, err) }()

	current, err := ix.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	embedded, reindexed := false, false
	if patch.Content != nil && *patch.Content != current.Content {
		if strings.TrimSpace(*patch.Content) == "" {
			return nil, fmt.Errorf("content cannot be empty: %w", errorskg.ErrInvalidInput)
		}
		if chunks, err = ix.embedChunks(ctx, *patch.Content); err != nil {
			return nil, err
		}
		embedded = true
	}

	err = ix.store.WithinTx(ctx, func(tx Tx) error {
		d, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		changes, contentChanged := apply(d, patch)
		if contentChanged {
			if !embedded {
				// content moved under us since the pre-read
				if chunks, err = ix.embedChunks(ctx, d.Content); err != nil {
					return err
				}
			}
			if err := tx.DeleteChunks(ctx, id); err != nil {
				return fmt.Errorf("delete chunks: %w", err)
			}
			if err := tx.InsertChunks(ctx, id, chunks); err != nil {
				return fmt.Errorf("insert chunks: %w", err)
			}
		}
		d.UpdatedBy = patch.Actor
		if err := tx.UpdateDocument(ctx, d); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if len(changes) > 0 {
			if err := tx.AppendAudit(ctx, AuditEntry{
				DocumentID:  &id,
				Action:      ActionUpdated,
				PerformedBy: patch.Actor,
				Changes:     changes,
			}); err != nil {
				return fmt.Errorf("append audit: %w", err)
			}
		}
		doc, reindexed = d, contentChanged
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("reindexed", reindexed))
	ix.logger.Info("document updated", "id", id, "reindexed", reindexed)
	return doc, nil
}

// Delete writes a "deleted" audit entry and removes the document with its chunks.
func (ix *Indexer) Delete(ctx context.Context, id int64, actor string) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "kb.Delete")
	span.SetAttributes(attribute.Int64("document.id", id))
	defer func() { telemetry.End(span, err) }()

	err = ix.store.WithinTx(ctx, func(tx Tx) error {
		d, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, AuditEntry{
			DocumentID:  &id,
			Action:      ActionDeleted,
			PerformedBy: actor,
			Changes:     map[string]any{"title": d.Title},
		}); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
		if err := tx.DeleteChunks(ctx, id); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		return tx.DeleteDocument(ctx, id)
	})
	if err != nil {
		return err
	}
	ix.logger.Info("document deleted", "id", id)
	return nil
}

// embedChunks preprocesses, chunks and embeds content. Any failure aborts the write.
func (ix *Indexer) embedChunks(ctx context.Context, content string) ([]Chunk, error) {
	texts := ix.chunker.Chunk(preprocess.Preprocess(content))
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks: %w", len(vectors), len(texts), errorskg.ErrInternal)
	}
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		if err := vector.CheckDimension(vectors[i], ix.embedder.Dimension()); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		chunks[i] = Chunk{Index: i, Text: text, Vector: vectors[i], Model: ix.model}
	}
	return chunks, nil
}

// apply mutates d with patch and returns the audited changes.
func apply(d *Document, p Patch) (map[string]any, bool) {
	changes := map[string]any{}
	contentChanged := false

	if p.Title != nil && *p.Title != d.Title {
		changes["title"] = Change{Old: d.Title, New: *p.Title}
		d.Title = *p.Title
	}
	if p.Content != nil && *p.Content != d.Content {
		changes["content"] = Change{Old: len(d.Content), New: len(*p.Content)}
		d.Content = *p.Content
		contentChanged = true
	}
	if p.Category != nil && *p.Category != d.Category {
		changes["category"] = Change{Old: d.Category, New: *p.Category}
		d.Category = *p.Category
	}
	if p.Subcategory != nil && *p.Subcategory != d.Subcategory {
		changes["subcategory"] = Change{Old: d.Subcategory, New: *p.Subcategory}
		d.Subcategory = *p.Subcategory
	}
	if p.Tags != nil && !slices.Equal(*p.Tags, d.Tags) {
		changes["tags"] = Change{Old: d.Tags, New: *p.Tags}
		d.Tags = *p.Tags
	}
	if p.FiberIDs != nil && !slices.Equal(*p.FiberIDs, d.FiberIDs) {
		changes["fiber_ids"] = Change{Old: d.FiberIDs, New: *p.FiberIDs}
		d.FiberIDs = *p.FiberIDs
	}
	if p.IsPublished != nil && *p.IsPublished != d.IsPublished {
		changes["is_published"] = Change{Old: d.IsPublished, New: *p.IsPublished}
		d.IsPublished = *p.IsPublished
	}
	return changes, contentChanged
}
