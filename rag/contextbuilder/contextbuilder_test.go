package contextbuilder

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/rag/tokenizer"
)

func ptr[T any](v T) *T { return &v }

func polyester() *fiber.Record {
	return &fiber.Record{
		ID:                       2,
		FiberID:                  "F002",
		Name:                     "Polyester",
		Class:                    &fiber.Lookup{Name: "Synthetic"},
		TradeNames:               []string{"Dacron", "Terylene"},
		PolymerComposition:       "Polyethylene terephthalate",
		Applications:             []string{"a1", "a2", "a3", "a4", "a5", "a6"},
		Density:                  ptr(1.38),
		TenacityMin:              ptr(35.0),
		TenacityMax:              ptr(50.0),
		ElongationMin:            ptr(15.0),
		AcidResistance:           "good",
		MeltingPoint:             ptr(260.0),
		ThermalProperties:        strings.Repeat("t", 250),
		StructureImageURL:        "https://img.example/pet.png",
		Biodegradable:            ptr(false),
		EnvironmentalImpactScore: ptr(4),
		IsActive:                 true,
	}
}

func TestEntryFieldOrderAndGuards(t *testing.T) {
	got := Entry(1, fiber.Match{Fiber: polyester(), Similarity: 0.8123})
	want := []string{
		"\n1. **Polyester** (ID: F002)",
		"   - Class: Synthetic",
		"   - Trade Names: Dacron, Terylene",
		"   - Composition: Polyethylene terephthalate",
		"   - Applications: a1, a2, a3, a4, a5",
		"   - Properties: Density: 1.38 g/cm³, Tenacity: 35-50 cN/tex",
		"   - Chemical Resistance: Acid: good",
		"   - Thermal: Melting Point: 260°C",
		"   - Thermal Properties: " + strings.Repeat("t", 200) + "...",
		"   - Structure Image Available: Yes (ID: N/A)",
		"   - Biodegradable: No",
		"   - Environmental Impact Score: 4/10",
		"   - Relevance Score: 0.81",
	}
	if got != strings.Join(want, "\n") {
		t.Fatalf("Entry mismatch:\n%s\n--- want ---\n%s", got, strings.Join(want, "\n"))
	}
}

func TestEntryOmitsRelevanceForExactMatches(t *testing.T) {
	got := Entry(3, fiber.Match{Fiber: &fiber.Record{Name: "Jute", FiberID: "F010"}, Similarity: 1.0})
	if got != "\n3. **Jute** (ID: F010)" {
		t.Fatalf("bare record should render only its heading, got %q", got)
	}
}

func TestBuild(t *testing.T) {
	if New().Build(nil) != "" {
		t.Fatal("no matches should render nothing")
	}
	out := New().Build([]fiber.Match{
		{Fiber: polyester(), Similarity: 0.9},
		{Fiber: &fiber.Record{Name: "Jute", FiberID: "F010"}, Similarity: 0.75},
	})
	if !strings.HasPrefix(out, header) || !strings.HasSuffix(out, trailer) {
		t.Fatalf("missing header or trailer:\n%s", out)
	}
	if !strings.Contains(out, "\n2. **Jute**") {
		t.Fatalf("second entry missing:\n%s", out)
	}
}

func TestBuildTokenBudgetDropsTrailingEntries(t *testing.T) {
	var matches []fiber.Match
	for i := 0; i < 10; i++ {
		matches = append(matches, fiber.Match{Fiber: polyester(), Similarity: 0.9})
	}
	tok := tokenizer.NewSimpleTokenizer()
	unbounded := New().Build(matches)
	bounded := New(WithTokenBudget(tok, tok.CountTokens(unbounded)/3)).Build(matches)

	if tok.CountTokens(bounded) > tok.CountTokens(unbounded)/3+5 {
		t.Fatalf("bounded block too large: %d tokens", tok.CountTokens(bounded))
	}
	if !strings.Contains(bounded, "1. **Polyester**") || strings.Contains(bounded, "10. **Polyester**") {
		t.Fatal("budget should keep leading entries and drop trailing ones")
	}
	if !strings.HasSuffix(bounded, trailer) {
		t.Fatal("trailer must survive the budget")
	}
}
