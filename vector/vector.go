package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
)

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings, one per input in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// Candidate is one stored embedding belonging to an item (a fiber or a document).
// Facet names which part of the item it represents: a content type or a chunk index.
type Candidate struct {
	ItemID int64
	Facet  string
	Text   string
	Vector []float32
}

// Hit is the best-matching embedding of one item.
type Hit struct {
	ItemID     int64
	Facet      string
	Text       string
	Similarity float64
}

type unavailable struct {
	dimension int
	reason    string
}

// Unavailable returns an Embedder that always fails with ErrEmbeddingUnavailable.
// It stands in for an unconfigured provider so retrieval can degrade to keyword search.
func Unavailable(dimension int, reason string) Embedder {
	return unavailable{dimension: dimension, reason: reason}
}

func (u unavailable) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: %s", errorskg.ErrEmbeddingUnavailable, u.reason)
}

func (u unavailable) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: %s", errorskg.ErrEmbeddingUnavailable, u.reason)
}

func (u unavailable) Dimension() int { return u.dimension }

// CheckDimension enforces that vec has exactly the configured dimension.
func CheckDimension(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return fmt.Errorf("%w: expected %d, got %d", errorskg.ErrDimensionMismatch, dimension, len(vec))
	}
	return nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - cosine similarity, matching pgvector's <=> operator.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Nearest ranks candidates per item and keeps only the closest embedding of each item.
// Hits below threshold are dropped; the rest are ordered by descending similarity
// (ties by item id) and cut to limit when limit > 0.
func Nearest(query []float32, candidates []Candidate, threshold float64, limit int) []Hit {
	best := make(map[int64]Hit)
	for _, cand := range candidates {
		sim := CosineSimilarity(query, cand.Vector)
		if sim < threshold {
			continue
		}
		if cur, ok := best[cand.ItemID]; ok && cur.Similarity >= sim {
			continue
		}
		best[cand.ItemID] = Hit{
			ItemID:     cand.ItemID,
			Facet:      cand.Facet,
			Text:       cand.Text,
			Similarity: sim,
		}
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ItemID < hits[j].ItemID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Literal renders a vector in pgvector's text format: [1,2,3].
func Literal(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec) * 10)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseLiteral parses pgvector's text format back into a vector.
func ParseLiteral(str string) ([]float32, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	if strings.TrimSpace(str) == "" {
		return []float32{}, nil
	}
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector component at index %d: %q", i, part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
