package category

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/fiberkb/fiber"
)

type stubStore struct {
	lookups []fiber.Lookup
	fibers  []*fiber.Record
	calls   int
}

func (s *stubStore) FindLookups(_ context.Context, kind fiber.CategoryKind, patterns []string) ([]fiber.Lookup, error) {
	s.calls++
	var out []fiber.Lookup
	for _, l := range s.lookups {
		if l.Kind != kind {
			continue
		}
		for _, p := range patterns {
			if strings.Contains(strings.ToLower(l.Name), p) {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (s *stubStore) FibersByLookup(_ context.Context, kind fiber.CategoryKind, name string, limit int) ([]*fiber.Record, error) {
	var out []*fiber.Record
	for _, rec := range s.fibers {
		if rec.IsActive && strings.EqualFold(rec.LookupName(kind), name) {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func fixture() *stubStore {
	natural := &fiber.Lookup{ID: 1, Kind: fiber.KindClass, Name: "Natural"}
	synthetic := &fiber.Lookup{ID: 2, Kind: fiber.KindClass, Name: "Synthetic"}
	cellulose := &fiber.Lookup{ID: 3, Kind: fiber.KindSubtype, Name: "Cellulose_seed"}
	thermo := &fiber.Lookup{ID: 4, Kind: fiber.KindSyntheticType, Name: "Thermoplastic"}
	return &stubStore{
		lookups: []fiber.Lookup{*natural, *synthetic, *cellulose, *thermo},
		fibers: []*fiber.Record{
			{ID: 1, Name: "Cotton", Class: natural, Subtype: cellulose, IsActive: true},
			{ID: 2, Name: "Wool", Class: natural, IsActive: true},
			{ID: 3, Name: "Polyester", Class: synthetic, SyntheticType: thermo, IsActive: true},
			{ID: 4, Name: "Retired", Class: natural, IsActive: false},
		},
	}
}

func TestResolveClassKeyword(t *testing.T) {
	r := NewResolver(fixture())
	res, err := r.Resolve(context.Background(), "List all natural fibers")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil || res.Kind != fiber.KindClass || res.Label != "natural" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Fibers) != 2 {
		t.Fatalf("expected the 2 active natural fibers, got %d", len(res.Fibers))
	}
}

func TestResolveSuffixStripped(t *testing.T) {
	r := NewResolver(fixture())
	res, err := r.Resolve(context.Background(), "which cellulosic fibres exist")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil || res.Kind != fiber.KindSubtype || len(res.Fibers) != 1 || res.Fibers[0].Name != "Cotton" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveKindPriority(t *testing.T) {
	r := NewResolver(fixture())
	res, err := r.Resolve(context.Background(), "synthetic thermoplastic fibers")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil || res.Kind != fiber.KindClass {
		t.Fatalf("class should win over synthetic type, got %+v", res)
	}
}

func TestResolveNoMatch(t *testing.T) {
	store := fixture()
	r := NewResolver(store)
	res, err := r.Resolve(context.Background(), "tell me about kevlar")
	if err != nil || res != nil {
		t.Fatalf("expected no match, got %+v, %v", res, err)
	}
	if store.calls != 0 {
		t.Fatalf("no keyword present, store should not be queried (calls=%d)", store.calls)
	}

	res, err = r.Resolve(context.Background(), "mineral fibers")
	if err != nil || res != nil {
		t.Fatalf("keyword without lookup rows should not match, got %+v, %v", res, err)
	}
}

func TestPatterns(t *testing.T) {
	if got := Patterns("cellulosic"); len(got) != 2 || got[1] != "cellulos" {
		t.Fatalf("Patterns(cellulosic) = %v", got)
	}
	if got := Patterns("natural"); len(got) != 1 {
		t.Fatalf("Patterns(natural) = %v", got)
	}
}
