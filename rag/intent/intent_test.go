package intent

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		query string
		kind  Kind
	}{
		{"hello there", General},
		{"what are the properties of cotton", Identification},
		{"density characteristic of wool", PropertyInquiry},
		{"how is nylon made", ManufacturingInquiry},
		{"compare silk versus wool", Comparison},
		{"explain melt spinning", Identification},
		{"list natural fibers", CategoryInquiry},
		{"show me the molecular structure of nylon", StructureImageRequest},
	}
	for _, c := range cases {
		got := Classify(c.query, CommonFibers)
		if got.Kind != c.kind {
			t.Fatalf("Classify(%q).Kind = %s, want %s", c.query, got.Kind, c.kind)
		}
	}
}

func TestClassifyLastRuleWins(t *testing.T) {
	// "compare" (comparison) and "tell me about" (identification): identification is evaluated later.
	got := Classify("compare and tell me about wool", CommonFibers)
	if got.Kind != Identification {
		t.Fatalf("expected identification to win, got %s", got.Kind)
	}
}

func TestClassifyEntitiesAndFlags(t *testing.T) {
	got := Classify("Show me the structure of Kevlar", CommonFibers)
	if got.Entities.FiberName != "kevlar" {
		t.Fatalf("FiberName = %q", got.Entities.FiberName)
	}
	if !got.RequiresSearch || !got.NeedsImages {
		t.Fatalf("flags not set: %+v", got)
	}
	if len(got.SearchTerms) != 1 || got.SearchTerms[0] != "kevlar" {
		t.Fatalf("SearchTerms = %v", got.SearchTerms)
	}

	plain := Classify("hello there", CommonFibers)
	if plain.RequiresSearch || plain.NeedsImages {
		t.Fatalf("small talk should not search: %+v", plain)
	}
	if len(plain.SearchTerms) != 1 || plain.SearchTerms[0] != "hello there" {
		t.Fatalf("SearchTerms should default to the raw query, got %v", plain.SearchTerms)
	}
}

func TestClassifyFirstVocabularyMatchWins(t *testing.T) {
	got := Classify("nylon or cotton?", CommonFibers)
	if got.Entities.FiberName != "cotton" {
		t.Fatalf("vocabulary order decides, got %q", got.Entities.FiberName)
	}
}

func TestIsListingQuery(t *testing.T) {
	for _, q := range []string{"all natural fibers", "List examples", "Which fibers melt?", "what are bast fibers"} {
		if !IsListingQuery(q) {
			t.Fatalf("%q should be a listing query", q)
		}
	}
	if IsListingQuery("density of cotton") {
		t.Fatal("density question is not a listing query")
	}
}

type stubNames struct {
	names []string
	calls int
	err   error
}

func (s *stubNames) FiberNames(context.Context) ([]string, error) {
	s.calls++
	return s.names, s.err
}

func TestVocabularyPopulatesOnceUntilInvalidated(t *testing.T) {
	src := &stubNames{names: []string{"Sea Island Cotton", "Cotton", "Qiviut"}}
	vocab := NewVocabulary(src, nil)
	ctx := context.Background()

	names, err := vocab.Names(ctx)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if names[0] != "cotton" || names[len(names)-1] != "qiviut" {
		t.Fatalf("built-in names first, store names after: %v", names)
	}
	if len(names) != len(CommonFibers)+2 {
		t.Fatalf("duplicates not removed: %d names", len(names))
	}

	if _, err := vocab.Names(ctx); err != nil || src.calls != 1 {
		t.Fatalf("second call should hit the cache, calls=%d err=%v", src.calls, err)
	}
	if err := vocab.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := vocab.Names(ctx); err != nil || src.calls != 2 {
		t.Fatalf("invalidate should force a reload, calls=%d err=%v", src.calls, err)
	}
}

func TestDetectorUsesStoreNames(t *testing.T) {
	det := NewDetector(NewVocabulary(&stubNames{names: []string{"Qiviut"}}, nil))
	in, err := det.Detect(context.Background(), "Tell me about qiviut")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if in.Entities.FiberName != "qiviut" || in.Kind != Identification {
		t.Fatalf("unexpected intent %+v", in)
	}

	failing := NewDetector(NewVocabulary(&stubNames{err: errors.New("db down")}, nil))
	if _, err := failing.Detect(context.Background(), "cotton"); err == nil {
		t.Fatal("expected vocabulary error")
	}
}
