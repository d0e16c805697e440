package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/rag/category"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

type stubEmbedder struct {
	err     error
	queries []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

type stubIndex struct {
	semantic     []fiber.Match
	keyword      []*fiber.Record
	semanticErr  error
	keywordErr   error
	nearestCalls int
	keywordCalls int
	lastKeyword  keyword.Query
}

func (s *stubIndex) NearestFibers(_ context.Context, _ []float32, _ fiber.Scope, threshold float64, limit int) ([]fiber.Match, error) {
	s.nearestCalls++
	if s.semanticErr != nil {
		return nil, s.semanticErr
	}
	var out []fiber.Match
	for _, m := range s.semantic {
		if m.Similarity >= threshold {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubIndex) KeywordFibers(_ context.Context, q keyword.Query, _ fiber.Scope, limit int) ([]*fiber.Record, error) {
	s.keywordCalls++
	s.lastKeyword = q
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	if len(s.keyword) > limit {
		return s.keyword[:limit], nil
	}
	return s.keyword, nil
}

type stubCategories struct {
	natural []*fiber.Record
}

func (s *stubCategories) FindLookups(_ context.Context, kind fiber.CategoryKind, patterns []string) ([]fiber.Lookup, error) {
	if kind == fiber.KindClass && patterns[0] == "natural" {
		return []fiber.Lookup{{ID: 1, Kind: fiber.KindClass, Name: "Natural"}}, nil
	}
	return nil, nil
}

func (s *stubCategories) FibersByLookup(context.Context, fiber.CategoryKind, string, int) ([]*fiber.Record, error) {
	return s.natural, nil
}

func rec(id int64, name string) *fiber.Record {
	return &fiber.Record{ID: id, Name: name, IsActive: true}
}

func TestRetrieveListingQueryUsesCategory(t *testing.T) {
	idx := &stubIndex{}
	emb := &stubEmbedder{}
	cats := &stubCategories{natural: []*fiber.Record{rec(1, "Cotton"), rec(2, "Wool"), rec(3, "Silk")}}
	eng := New(idx, emb, nil, category.NewResolver(cats))

	res, err := eng.Retrieve(context.Background(), "all natural fibers", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategyCategory || len(res.Matches) != 3 {
		t.Fatalf("expected 3 category matches, got %s with %d", res.Strategy, len(res.Matches))
	}
	for _, m := range res.Matches {
		if m.Similarity != 1.0 {
			t.Fatalf("category matches must score 1.0, got %v", m.Similarity)
		}
	}
	if idx.nearestCalls != 0 || idx.keywordCalls != 0 || len(emb.queries) != 0 {
		t.Fatal("category short-circuit must skip semantic and keyword search")
	}
}

func TestRetrieveSparseSemanticAppendsKeyword(t *testing.T) {
	idx := &stubIndex{
		semantic: []fiber.Match{
			{Fiber: rec(1, "Nylon 6"), ContentType: fiber.ContentProperties, Similarity: 0.71},
			{Fiber: rec(2, "Nylon 6,6"), ContentType: fiber.ContentComplete, Similarity: 0.62},
			{Fiber: rec(3, "Aramid"), ContentType: fiber.ContentBasicInfo, Similarity: 0.48},
			{Fiber: rec(9, "Below threshold"), Similarity: 0.40},
		},
		keyword: []*fiber.Record{rec(2, "Nylon 6,6"), rec(4, "Nylon 11"), rec(5, "Nylon 12")},
	}
	eng := New(idx, &stubEmbedder{}, nil, nil)

	res, err := eng.Retrieve(context.Background(), "properties of nylon", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategyHybrid {
		t.Fatalf("Strategy = %s", res.Strategy)
	}
	if len(res.Matches) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(res.Matches))
	}
	wantIDs := []int64{1, 2, 3, 4, 5}
	wantScores := []float64{0.71, 0.62, 0.48, 0.75, 0.75}
	for i, m := range res.Matches {
		if m.Fiber.ID != wantIDs[i] || m.Similarity != wantScores[i] {
			t.Fatalf("match %d = (%d, %v), want (%d, %v)", i, m.Fiber.ID, m.Similarity, wantIDs[i], wantScores[i])
		}
	}
	if res.Matches[3].ContentType != fiber.ContentKeyword {
		t.Fatalf("appended match should be tagged as keyword fallback, got %s", res.Matches[3].ContentType)
	}
}

func TestRetrieveDenseSemanticSkipsKeyword(t *testing.T) {
	idx := &stubIndex{}
	for i := int64(1); i <= 8; i++ {
		idx.semantic = append(idx.semantic, fiber.Match{Fiber: rec(i, "f"), Similarity: 0.9 - float64(i)/100})
	}
	eng := New(idx, &stubEmbedder{}, nil, nil)

	res, err := eng.Retrieve(context.Background(), "polyester properties", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategySemantic || idx.keywordCalls != 0 {
		t.Fatalf("8 semantic hits should not trigger keyword search (strategy %s, calls %d)", res.Strategy, idx.keywordCalls)
	}
}

func TestRetrieveNoSearchNeeded(t *testing.T) {
	idx := &stubIndex{}
	emb := &stubEmbedder{}
	eng := New(idx, emb, nil, nil)

	res, err := eng.Retrieve(context.Background(), "hello there", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategyNone || len(res.Matches) != 0 || len(emb.queries) != 0 || idx.keywordCalls != 0 {
		t.Fatalf("small talk should not touch the store: %+v", res)
	}
}

func TestRetrieveEmbeddingUnavailableFallsBackToKeyword(t *testing.T) {
	idx := &stubIndex{keyword: []*fiber.Record{rec(7, "Cotton")}}
	eng := New(idx, vector.Unavailable(2, "no key"), nil, nil)

	res, err := eng.Retrieve(context.Background(), "tell me about cottn", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategyKeyword || len(res.Matches) != 1 || res.Matches[0].Similarity != 0.75 {
		t.Fatalf("expected keyword-only result, got %+v", res)
	}
	if idx.nearestCalls != 0 {
		t.Fatal("vector query should not run without an embedding")
	}
}

func TestRetrieveVectorFailureFallsBack(t *testing.T) {
	idx := &stubIndex{
		semanticErr: errorskg.ErrStoreQueryFailed,
		keyword:     []*fiber.Record{rec(1, "Wool")},
	}
	eng := New(idx, &stubEmbedder{}, nil, nil)

	res, err := eng.Retrieve(context.Background(), "wool properties", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Strategy != StrategyKeyword || len(res.Matches) != 1 {
		t.Fatalf("expected keyword fallback, got %+v", res)
	}
}

func TestRetrieveBothStrategiesFail(t *testing.T) {
	idx := &stubIndex{semanticErr: errorskg.ErrStoreQueryFailed, keywordErr: errors.New("connection reset")}
	eng := New(idx, &stubEmbedder{}, nil, nil)

	_, err := eng.Retrieve(context.Background(), "wool properties", nil)
	if !errors.Is(err, errorskg.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
}

func TestRetrieveCarriesFiberFromHistory(t *testing.T) {
	idx := &stubIndex{}
	emb := &stubEmbedder{}
	eng := New(idx, emb, nil, nil)
	history := []*message.Message{
		message.NewMessage(message.RoleUser, "tell me about kevlar"),
		message.NewMessage(message.RoleAssistant, "Kevlar is an aramid."),
	}

	res, err := eng.Retrieve(context.Background(), "what about its density property?", history)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.HasPrefix(res.Query, "kevlar ") {
		t.Fatalf("expected fiber carried forward, query = %q", res.Query)
	}
	if len(emb.queries) != 1 || emb.queries[0] != res.Query {
		t.Fatalf("semantic search should use the carried query, got %v", emb.queries)
	}
}

func TestMergeDropsDuplicates(t *testing.T) {
	semantic := []fiber.Match{{Fiber: rec(1, "a"), Similarity: 0.9}}
	merged := Merge(semantic, []*fiber.Record{rec(1, "a"), rec(2, "b"), rec(2, "b")}, 0.75)
	if len(merged) != 2 {
		t.Fatalf("expected 2 unique matches, got %d", len(merged))
	}
	if merged[0].Similarity != 0.9 {
		t.Fatal("semantic score must be kept")
	}
}

func TestSearchFibersFilterDefaults(t *testing.T) {
	idx := &stubIndex{semantic: []fiber.Match{{Fiber: rec(1, "a"), Similarity: 0.5}}}
	eng := New(idx, &stubEmbedder{}, nil, nil, WithSparseBelow(1))

	got, err := eng.SearchFibers(context.Background(), "a", Filter{Threshold: 0.6})
	if err != nil {
		t.Fatalf("SearchFibers: %v", err)
	}
	if len(got) != 0 || idx.keywordCalls != 1 {
		t.Fatalf("threshold override should drop the hit and trigger keyword search, got %d hits, %d keyword calls", len(got), idx.keywordCalls)
	}
}
