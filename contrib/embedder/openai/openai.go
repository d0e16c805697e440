// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel/attribute"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/pkg/telemetry"
	"github.com/sweetpotato0/fiberkb/vector"
)

// Embedder implements vector.Embedder by using openai.
type Embedder struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

// New creates an Embedder. Without an API key it returns an embedder that always
// reports ErrEmbeddingUnavailable, so retrieval runs keyword-only.
func New(apiKey, baseURL string, model openaisdk.EmbeddingModel, dimension int) vector.Embedder {
	if strings.TrimSpace(apiKey) == "" {
		return vector.Unavailable(dimension, "OPENAI_API_KEY not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Embedder{
		client:    openaisdk.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

// Dimension returns the number of embedding dimensions.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to embeddings in one request, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (out [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := telemetry.Tracer().Start(ctx, "openai.Embeddings")
	span.SetAttributes(attribute.String("model", string(e.model)), attribute.Int("inputs", len(texts)))
	defer func() { telemetry.End(span, err) }()

	params := openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Dimensions: openaisdk.Int(int64(e.dimension)),
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: create embeddings: %v", errorskg.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", errorskg.ErrEmbeddingUnavailable, len(texts), len(resp.Data))
	}

	out = make([][]float32, len(texts))
	for _, emb := range resp.Data {
		if emb.Index < 0 || int(emb.Index) >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", errorskg.ErrEmbeddingUnavailable, emb.Index)
		}
		vec, err := convertVector(emb.Embedding, e.dimension)
		if err != nil {
			return nil, err
		}
		out[emb.Index] = vec
	}
	return out, nil
}

func convertVector(input []float64, expected int) ([]float32, error) {
	if len(input) != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", errorskg.ErrDimensionMismatch, expected, len(input))
	}
	vec := make([]float32, expected)
	for i, v := range input {
		vec[i] = float32(v)
	}
	return vec, nil
}
