// Package normalize expands raw search strings into lexical variants that tolerate
// typos, separator drift and concatenated compound terms.
package normalize

import (
	"strings"
	"unicode/utf8"
)

// MaxVariants bounds the number of patterns returned by Variants.
const MaxVariants = 12

// typoFixes is applied in order to every separator variant. Each fix only changes how
// often a letter repeats.
var typoFixes = []struct{ typo, fix string }{
	{"spiniinng", "spinning"},
	{"spinnnning", "spinning"},
	{"spining", "spinning"},
	{"dyeinng", "dyeing"},
	{"kniting", "knitting"},
}

// Variants returns up to MaxVariants distinct lowercase patterns for query, base pattern first.
// The patterns are meant to be OR-combined in a substring search; an empty query yields nil.
func Variants(query string) []string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if normalized == "" {
		return nil
	}

	set := newOrderedSet()

	base := strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(normalized)), " ")
	set.add(base)
	if strings.Contains(base, " ") {
		set.add(strings.ReplaceAll(base, " ", "-"))
		set.add(strings.ReplaceAll(base, " ", "_"))
	}
	noSep := strings.ReplaceAll(base, " ", "")
	if noSep != base {
		set.add(noSep)
	}

	var repaired []string
	for _, p := range set.items() {
		corrected := p
		for _, tf := range typoFixes {
			corrected = strings.ReplaceAll(corrected, tf.typo, tf.fix)
		}
		if corrected != p {
			repaired = append(repaired, corrected)
		}

		double := CollapseRuns(p, 2)
		if double != p {
			repaired = append(repaired, double)
		}
		if single := CollapseRuns(p, 1); single != p && single != double {
			repaired = append(repaired, single)
		}
	}
	for _, p := range repaired {
		set.add(p)
	}

	if n := utf8.RuneCountInString(noSep); n > 6 {
		runes := []rune(noSep)
		for i := 3; i < min(8, n-2); i++ {
			split := string(runes[:i]) + " " + string(runes[i:])
			if set.has(split) {
				continue
			}
			set.add(split)
			set.add(string(runes[:i]) + "-" + string(runes[i:]))
		}
	}

	out := set.items()
	if len(out) > MaxVariants {
		out = out[:MaxVariants]
	}
	return out
}

// CollapseRuns shortens every run of three or more identical runes to keep runes.
// Shorter runs are left alone.
func CollapseRuns(s string, keep int) string {
	if keep < 1 {
		keep = 1
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= 3 {
			n = keep
		}
		for k := 0; k < n; k++ {
			b.WriteRune(runes[i])
		}
		i = j
	}
	return b.String()
}

// Skeleton reduces a word to its consonant outline: ASCII letters and digits only,
// repeated runes collapsed, vowels dropped after the first rune.
// "cottn" and "cotton" both reduce to "ctn".
func Skeleton(word string) string {
	var prev rune
	var b strings.Builder
	first := true
	for _, r := range strings.ToLower(word) {
		if !isWordRune(r) {
			prev = 0
			continue
		}
		if r == prev {
			continue
		}
		prev = r
		if !first && strings.ContainsRune("aeiou", r) {
			continue
		}
		first = false
		b.WriteRune(r)
	}
	return b.String()
}

// Words splits text into lowercase ASCII alphanumeric words.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) })
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.seen[v]
	return ok
}

func (s *orderedSet) items() []string {
	return append([]string(nil), s.order...)
}
