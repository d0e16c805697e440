// Package inmemory keeps fibers, embeddings and knowledge base documents in process
// memory. It implements every store interface of the retrieval core and backs tests
// and single-process demos.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/rag/keyword"
	"github.com/sweetpotato0/fiberkb/vector"
)

// Store is a concurrency-safe in-memory fiber and document store.
type Store struct {
	mu sync.RWMutex

	fibers     map[int64]*fiber.Record
	nextFiber  int64
	lookups    map[fiber.CategoryKind][]fiber.Lookup
	nextLookup int64
	embeddings map[int64]map[fiber.ContentType]fiber.Embedding
	// dimension of every stored vector; 0 until set by WithDimension or the first write
	dimension int

	docs docState
}

// Option configures a Store.
type Option func(*Store)

// WithDimension fixes the vector dimension, as the pgvector column does for the
// Postgres store.
func WithDimension(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.dimension = n
		}
	}
}

// New returns an empty store. Without WithDimension the first vector written fixes
// the dimension for fiber embeddings and document chunks alike.
func New(opts ...Option) *Store {
	s := &Store{
		fibers:     make(map[int64]*fiber.Record),
		lookups:    make(map[fiber.CategoryKind][]fiber.Lookup),
		embeddings: make(map[int64]map[fiber.ContentType]fiber.Embedding),
		docs:       newDocState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimension returns the fixed vector dimension, 0 while none was written.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// checkDimension validates vec against dim and adopts its length when dim is unset.
func checkDimension(dim *int, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("embedding vector cannot be empty: %w", errorskg.ErrInvalidInput)
	}
	if *dim == 0 {
		*dim = len(vec)
		return nil
	}
	return vector.CheckDimension(vec, *dim)
}

// EnsureLookup returns the lookup of kind named name, creating it when missing.
// Names compare case-insensitively.
func (s *Store) EnsureLookup(_ context.Context, kind fiber.CategoryKind, name string, parentID *int64) (fiber.Lookup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return fiber.Lookup{}, fmt.Errorf("%s name cannot be empty: %w", kind, errorskg.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lookups[kind] {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	s.nextLookup++
	l := fiber.Lookup{ID: s.nextLookup, Kind: kind, Name: name, ParentID: parentID}
	s.lookups[kind] = append(s.lookups[kind], l)
	return l, nil
}

// UpsertFiber inserts rec, or replaces the fiber with the same FiberID (or name when
// FiberID is empty). It reports whether a new row was created.
func (s *Store) UpsertFiber(_ context.Context, rec *fiber.Record) (int64, bool, error) {
	if rec == nil || strings.TrimSpace(rec.Name) == "" {
		return 0, false, fmt.Errorf("fiber name cannot be empty: %w", errorskg.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *rec
	for id, existing := range s.fibers {
		same := rec.FiberID != "" && existing.FiberID == rec.FiberID
		if rec.FiberID == "" {
			same = strings.EqualFold(existing.Name, rec.Name)
		}
		if same {
			cp.ID, cp.CreatedAt, cp.UpdatedAt = id, existing.CreatedAt, now
			s.fibers[id] = &cp
			return id, false, nil
		}
	}
	s.nextFiber++
	cp.ID, cp.CreatedAt, cp.UpdatedAt = s.nextFiber, now, now
	s.fibers[cp.ID] = &cp
	return cp.ID, true, nil
}

// GetFiber implements fiber.Store.
func (s *Store) GetFiber(_ context.Context, id int64) (*fiber.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.fibers[id]
	if !ok {
		return nil, fmt.Errorf("fiber %d: %w", id, errorskg.ErrItemNotFound)
	}
	return clone(rec), nil
}

// FiberByName implements fiber.Store.
func (s *Store) FiberByName(_ context.Context, name string) (*fiber.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.sorted(fiber.Scope{IncludeInactive: true}) {
		if strings.EqualFold(rec.Name, strings.TrimSpace(name)) {
			return clone(rec), nil
		}
	}
	return nil, fmt.Errorf("fiber %q: %w", name, errorskg.ErrItemNotFound)
}

// ListFibers implements fiber.Store.
func (s *Store) ListFibers(_ context.Context, scope fiber.Scope) ([]*fiber.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.sorted(scope)), nil
}

// FibersByApplication implements fiber.Store.
func (s *Store) FibersByApplication(_ context.Context, application string, limit int) ([]*fiber.Record, error) {
	want := strings.ToLower(strings.TrimSpace(application))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fiber.Record
	for _, rec := range s.sorted(fiber.Scope{}) {
		if limit > 0 && len(out) == limit {
			break
		}
		if slices.ContainsFunc(rec.Applications, func(a string) bool { return strings.Contains(strings.ToLower(a), want) }) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// FiberNames implements fiber.Store and intent.NameSource.
func (s *Store) FiberNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, rec := range s.sorted(fiber.Scope{}) {
		names = append(names, rec.Name)
	}
	return names, nil
}

// ContentTypes implements fiber.EmbeddingStore.
func (s *Store) ContentTypes(_ context.Context, fiberID int64) ([]fiber.ContentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fiber.ContentType
	for ct := range s.embeddings[fiberID] {
		out = append(out, ct)
	}
	slices.Sort(out)
	return out, nil
}

// UpsertEmbedding implements fiber.EmbeddingStore.
func (s *Store) UpsertEmbedding(_ context.Context, e fiber.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fibers[e.FiberID]; !ok {
		return fmt.Errorf("fiber %d: %w", e.FiberID, errorskg.ErrItemNotFound)
	}
	if err := checkDimension(&s.dimension, e.Vector); err != nil {
		return fmt.Errorf("fiber %d %s: %w", e.FiberID, e.ContentType, err)
	}
	if s.embeddings[e.FiberID] == nil {
		s.embeddings[e.FiberID] = make(map[fiber.ContentType]fiber.Embedding)
	}
	e.Vector = slices.Clone(e.Vector)
	s.embeddings[e.FiberID][e.ContentType] = e
	return nil
}

// DeleteEmbeddings implements fiber.EmbeddingStore.
func (s *Store) DeleteEmbeddings(_ context.Context, fiberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.embeddings, fiberID)
	return nil
}

// NearestFibers implements retrieval.Index: the closest content type per fiber.
func (s *Store) NearestFibers(_ context.Context, query []float32, scope fiber.Scope, threshold float64, limit int) ([]fiber.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []vector.Candidate
	for _, rec := range s.sorted(scope) {
		for ct, e := range s.embeddings[rec.ID] {
			if len(e.Vector) != len(query) {
				return nil, fmt.Errorf("%w: fiber %d %s: %w", errorskg.ErrStoreQueryFailed, rec.ID, ct, errorskg.ErrDimensionMismatch)
			}
			candidates = append(candidates, vector.Candidate{ItemID: rec.ID, Facet: string(ct), Text: e.Text, Vector: e.Vector})
		}
	}

	hits := vector.Nearest(query, candidates, threshold, limit)
	out := make([]fiber.Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, fiber.Match{
			Fiber:       clone(s.fibers[h.ItemID]),
			ContentType: fiber.ContentType(h.Facet),
			Similarity:  h.Similarity,
			MatchedText: h.Text,
		})
	}
	return out, nil
}

// KeywordFibers implements retrieval.Index.
func (s *Store) KeywordFibers(_ context.Context, q keyword.Query, scope fiber.Scope, limit int) ([]*fiber.Record, error) {
	if q.Empty() {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fiber.Record
	for _, rec := range s.sorted(scope) {
		if limit > 0 && len(out) == limit {
			break
		}
		if q.Match(rec.TextFields(), rec.NameFields()) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// FindLookups implements category.Store.
func (s *Store) FindLookups(_ context.Context, kind fiber.CategoryKind, patterns []string) ([]fiber.Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []fiber.Lookup
	for _, l := range s.lookups[kind] {
		name := strings.ToLower(l.Name)
		if slices.ContainsFunc(patterns, func(p string) bool { return p != "" && strings.Contains(name, strings.ToLower(p)) }) {
			out = append(out, l)
		}
	}
	return out, nil
}

// FibersByLookup implements category.Store.
func (s *Store) FibersByLookup(_ context.Context, kind fiber.CategoryKind, name string, limit int) ([]*fiber.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*fiber.Record
	for _, rec := range s.sorted(fiber.Scope{}) {
		if limit > 0 && len(out) == limit {
			break
		}
		if strings.EqualFold(rec.LookupName(kind), name) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// sorted returns the fibers allowed by scope in id order. Callers hold s.mu.
func (s *Store) sorted(scope fiber.Scope) []*fiber.Record {
	out := make([]*fiber.Record, 0, len(s.fibers))
	for _, rec := range s.fibers {
		if scope.Allows(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(rec *fiber.Record) *fiber.Record {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}

func cloneAll(recs []*fiber.Record) []*fiber.Record {
	out := make([]*fiber.Record, len(recs))
	for i, rec := range recs {
		out[i] = clone(rec)
	}
	return out
}
