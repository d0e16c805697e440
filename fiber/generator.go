package fiber

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sweetpotato0/fiberkb/pkg/logging"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/vector"
)

// Generator creates the per-facet embeddings of fibers.
type Generator struct {
	fibers     Store
	embeddings EmbeddingStore
	embedder   vector.Embedder
	model      string
	logger     *slog.Logger
}

// NewGenerator wires a generator. model is recorded next to every stored vector.
func NewGenerator(fibers Store, embeddings EmbeddingStore, embedder vector.Embedder, model string) *Generator {
	return &Generator{
		fibers:     fibers,
		embeddings: embeddings,
		embedder:   embedder,
		model:      model,
		logger:     logging.WithComponent("fiber_embeddings"),
	}
}

// Generate embeds the facets of rec. Without force only missing content types are created;
// with force all existing embeddings of the fiber are replaced. It returns the number stored.
func (g *Generator) Generate(ctx context.Context, rec *Record, force bool) (n int, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fiber.Generate")
	span.SetAttributes(attribute.Int64("fiber.id", rec.ID), attribute.Bool("force", force))
	defer func() { telemetry.End(span, err) }()

	existing := map[ContentType]bool{}
	if force {
		if err := g.embeddings.DeleteEmbeddings(ctx, rec.ID); err != nil {
			return 0, fmt.Errorf("delete embeddings of fiber %d: %w", rec.ID, err)
		}
	} else {
		types, err := g.embeddings.ContentTypes(ctx, rec.ID)
		if err != nil {
			return 0, fmt.Errorf("list embeddings of fiber %d: %w", rec.ID, err)
		}
		for _, t := range types {
			existing[t] = true
		}
	}

	var pending []Text
	for _, t := range EmbeddingTexts(rec) {
		if !existing[t.ContentType] {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	inputs := make([]string, len(pending))
	for i, t := range pending {
		inputs[i] = t.Text
	}
	vectors, err := g.embedder.EmbedBatch(ctx, inputs)
	if err != nil {
		return 0, fmt.Errorf("embed fiber %q: %w", rec.Name, err)
	}
	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("embed fiber %q: got %d vectors for %d texts", rec.Name, len(vectors), len(pending))
	}

	for i, t := range pending {
		if err := vector.CheckDimension(vectors[i], g.embedder.Dimension()); err != nil {
			return n, err
		}
		e := Embedding{
			FiberID:     rec.ID,
			ContentType: t.ContentType,
			Text:        t.Text,
			Vector:      vectors[i],
			Model:       g.model,
		}
		if err := g.embeddings.UpsertEmbedding(ctx, e); err != nil {
			return n, fmt.Errorf("store %s embedding of fiber %d: %w", t.ContentType, rec.ID, err)
		}
		n++
	}
	g.logger.Debug("fiber embeddings stored", "fiber", rec.Name, "count", n)
	return n, nil
}

// GenerateAll runs Generate over every active fiber and returns the total stored.
// A failing fiber is logged and skipped; the last error is returned with the total.
func (g *Generator) GenerateAll(ctx context.Context, force bool) (int, error) {
	recs, err := g.fibers.ListFibers(ctx, Scope{})
	if err != nil {
		return 0, fmt.Errorf("list fibers: %w", err)
	}

	total := 0
	var lastErr error
	for _, rec := range recs {
		n, err := g.Generate(ctx, rec, force)
		total += n
		if err != nil {
			g.logger.Warn("fiber embedding failed", "fiber", rec.Name, "error", err)
			lastErr = err
		}
	}
	g.logger.Info("fiber embeddings generated", "fibers", len(recs), "embeddings", total)
	return total, lastErr
}
