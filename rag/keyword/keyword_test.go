package keyword

import "testing"

func TestBuildTypoMatchesCotton(t *testing.T) {
	q := Build("cottn")
	if q.Skeleton == "" {
		t.Fatal("single-word query should carry a skeleton")
	}
	name := []string{"Cotton"}
	if !q.Match([]string{"Cotton", "Cellulose"}, name) {
		t.Fatal("cottn should match the Cotton record")
	}
	if q.Match([]string{"Nylon 6,6", "Polyamide"}, []string{"Nylon 6,6"}) {
		t.Fatal("cottn should not match nylon")
	}
}

func TestMatchAcrossTextFields(t *testing.T) {
	q := Build("melt spinning")
	if q.Skeleton != "" {
		t.Fatal("multi-word query should not carry a skeleton")
	}
	if !q.Match([]string{"Polyester", "", "melt-spinning then drawing"}, nil) {
		t.Fatal("hyphen variant should match array text")
	}
	if q.Match([]string{"wet spinning"}, nil) {
		t.Fatal("unrelated process should not match")
	}
}

func TestShortQueriesSkipSkeleton(t *testing.T) {
	if Build("pet").Skeleton != "" {
		t.Fatal("short query should not carry a skeleton")
	}
	if !Build("").Empty() {
		t.Fatal("blank query should be empty")
	}
}

func TestPatternsEscapeWildcards(t *testing.T) {
	q := Build("100%_cotton")
	for _, p := range q.Patterns() {
		if p[0] != '%' || p[len(p)-1] != '%' {
			t.Fatalf("pattern %q not wrapped", p)
		}
	}
	if got := EscapeLike(`a%b_c\`); got != `a\%b\_c\\` {
		t.Fatalf("EscapeLike = %q", got)
	}
}
