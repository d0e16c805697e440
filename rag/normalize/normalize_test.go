package normalize

import (
	"strings"
	"testing"
)

func TestVariantsSeparators(t *testing.T) {
	got := Variants("  Melt_Spinning ")
	want := []string{"melt spinning", "melt-spinning", "melt_spinning", "meltspinning"}
	for i, w := range want {
		if i >= len(got) || got[i] != w {
			t.Fatalf("variant %d: want %q, got %v", i, w, got)
		}
	}
}

func TestVariantsTypoRepair(t *testing.T) {
	got := Variants("spiniinng")
	if !contains(got, "spinning") {
		t.Fatalf("expected dictionary repair to spinning, got %v", got)
	}

	got = Variants("cottton")
	if !contains(got, "cotton") || !contains(got, "coton") {
		t.Fatalf("expected run collapse to cotton and coton, got %v", got)
	}
}

func TestVariantsConcatenationSplits(t *testing.T) {
	got := Variants("meltspinning")
	if !contains(got, "melt spinning") || !contains(got, "melt-spinning") {
		t.Fatalf("expected split variants, got %v", got)
	}
	if got[0] != "meltspinning" {
		t.Fatalf("base pattern must come first, got %v", got)
	}
}

func TestVariantsBounded(t *testing.T) {
	inputs := []string{"", "a", "cottn", "polyethylene terephthalate fibre", "aaaaabbbbbcccccdddd", "spinnnning-dyeinng_kniting"}
	for _, in := range inputs {
		got := Variants(in)
		if len(got) > MaxVariants {
			t.Fatalf("%q produced %d variants", in, len(got))
		}
		seen := map[string]bool{}
		for _, v := range got {
			if v != strings.ToLower(v) {
				t.Fatalf("%q produced non-lowercase variant %q", in, v)
			}
			if seen[v] {
				t.Fatalf("%q produced duplicate variant %q", in, v)
			}
			seen[v] = true
		}
	}
	if Variants("   ") != nil {
		t.Fatal("blank query should produce no variants")
	}
}

// Re-normalizing a variant can add separator forms of a split (e.g. "melt_spinning" from
// "melt spinning"), so the list is not closed under Variants. What holds is that every
// re-normalized pattern spells the same letters as the input once separators are dropped
// and repeated letters squeezed, and that the base pattern is a fixed point.
func TestVariantsRenormalization(t *testing.T) {
	inputs := []string{
		"meltspinning",
		"melt spinning",
		"Melt_Spinning",
		"wet-spinning",
		"spiniinng",
		"spinnnning",
		"cottton",
		"dyeinng",
		"kniting",
		"bamboo viscose",
		"polyester",
		"aaaaabbbbbcccccdddd",
		"spinnnning-dyeinng_kniting",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			original := Variants(in)
			if len(original) == 0 {
				t.Fatal("no variants")
			}
			if again := Variants(original[0]); strings.Join(again, "|") != strings.Join(original, "|") {
				t.Fatalf("base %q is not a fixed point:\n got %v\nwant %v", original[0], again, original)
			}

			want := fold(original[0])
			for _, v := range original {
				for _, again := range Variants(v) {
					if got := fold(again); got != want {
						t.Fatalf("re-normalizing %q produced %q (%q), want letters %q", v, again, got, want)
					}
				}
			}
		})
	}
}

// fold drops separators and squeezes repeated runes.
func fold(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' || r == prev {
			continue
		}
		prev = r
		b.WriteRune(r)
	}
	return b.String()
}

func TestCollapseRuns(t *testing.T) {
	cases := []struct {
		in   string
		keep int
		want string
	}{
		{"cottton", 2, "cotton"},
		{"cottton", 1, "coton"},
		{"cotton", 1, "cotton"},
		{"aaa-bbbb", 2, "aa-bb"},
	}
	for _, c := range cases {
		if got := CollapseRuns(c.in, c.keep); got != c.want {
			t.Fatalf("CollapseRuns(%q, %d) = %q, want %q", c.in, c.keep, got, c.want)
		}
	}
}

func TestSkeleton(t *testing.T) {
	if Skeleton("cottn") != Skeleton("Cotton") {
		t.Fatalf("cottn and Cotton should share a skeleton: %q vs %q", Skeleton("cottn"), Skeleton("Cotton"))
	}
	if Skeleton("cotton") == Skeleton("nylon") {
		t.Fatal("distinct words should not share a skeleton")
	}
	if got := Skeleton("Aramid"); got != "armd" {
		t.Fatalf("Skeleton(Aramid) = %q", got)
	}
}

func TestWords(t *testing.T) {
	got := Words("Pima Cotton, (Egyptian)")
	if strings.Join(got, "|") != "pima|cotton|egyptian" {
		t.Fatalf("Words = %v", got)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
