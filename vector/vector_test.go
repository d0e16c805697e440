package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %v", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("mismatched vectors: got %v", got)
	}
	if got := CosineDistance([]float32{3, 4}, []float32{6, 8}); math.Abs(got) > 1e-6 {
		t.Fatalf("parallel vectors distance: got %v", got)
	}
}

func TestNearestKeepsBestEmbeddingPerItem(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ItemID: 1, Facet: "name", Vector: []float32{0.6, 0.8}},
		{ItemID: 1, Facet: "properties", Vector: []float32{1, 0.1}},
		{ItemID: 1, Facet: "complete", Vector: []float32{0.8, 0.6}},
		{ItemID: 2, Facet: "name", Vector: []float32{0.7, 0.7}},
	}

	hits := Nearest(query, candidates, 0, 10)
	if len(hits) != 2 {
		t.Fatalf("expected one hit per item, got %d", len(hits))
	}
	if hits[0].ItemID != 1 || hits[0].Facet != "properties" {
		t.Fatalf("expected item 1 via properties first, got %+v", hits[0])
	}
	seen := map[int64]int{}
	for _, h := range hits {
		seen[h.ItemID]++
		if seen[h.ItemID] > 1 {
			t.Fatalf("item %d appeared twice", h.ItemID)
		}
	}
}

func TestNearestThresholdMonotonic(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := []Candidate{
		{ItemID: 1, Vector: []float32{1, 0, 0}},
		{ItemID: 2, Vector: []float32{0.9, 0.3, 0}},
		{ItemID: 3, Vector: []float32{0.5, 0.5, 0.5}},
		{ItemID: 4, Vector: []float32{0, 1, 0}},
	}
	prev := len(candidates) + 1
	for _, th := range []float64{0, 0.2, 0.45, 0.6, 0.9, 1} {
		n := len(Nearest(query, candidates, th, 0))
		if n > prev {
			t.Fatalf("threshold %v returned %d results, more than %d at a lower threshold", th, n, prev)
		}
		prev = n
	}
}

func TestNearestLimit(t *testing.T) {
	query := []float32{1, 0}
	var candidates []Candidate
	for i := int64(1); i <= 5; i++ {
		candidates = append(candidates, Candidate{ItemID: i, Vector: []float32{1, float32(i) / 10}})
	}
	hits := Nearest(query, candidates, 0, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ItemID != 1 {
		t.Fatalf("expected closest item first, got %d", hits[0].ItemID)
	}
}

func TestLiteralRoundTrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	lit := Literal(in)
	if lit != "[0.25,-1,3.5]" {
		t.Fatalf("Literal = %q", lit)
	}
	out, err := ParseLiteral(lit)
	if err != nil {
		t.Fatalf("ParseLiteral: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("component %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := ParseLiteral("[1,x]"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCheckDimension(t *testing.T) {
	if err := CheckDimension(make([]float32, 4), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckDimension(make([]float32, 3), 4); !errors.Is(err, errorskg.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestUnavailableEmbedder(t *testing.T) {
	emb := Unavailable(1536, "no api key")
	if emb.Dimension() != 1536 {
		t.Fatalf("Dimension = %d", emb.Dimension())
	}
	if _, err := emb.Embed(context.Background(), "cotton"); !errors.Is(err, errorskg.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
