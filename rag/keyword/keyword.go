// Package keyword builds the recall-oriented substring query used as the fallback
// and supplement to vector search.
package keyword

import (
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/fiberkb/rag/normalize"
)

// minSkeletonRunes is the shortest single-word query matched by skeleton.
const minSkeletonRunes = 4

// Query is a normalized keyword search. Every variant is OR-combined against every
// text field; Skeleton, when set, additionally matches name words with the same
// consonant outline.
type Query struct {
	Raw      string
	Variants []string
	Skeleton string
}

// Build normalizes raw into a Query.
func Build(raw string) Query {
	q := Query{Raw: raw, Variants: normalize.Variants(raw)}
	words := normalize.Words(raw)
	if len(words) == 1 && utf8.RuneCountInString(words[0]) >= minSkeletonRunes {
		q.Skeleton = normalize.Skeleton(words[0])
	}
	return q
}

// Empty reports whether the query can match nothing.
func (q Query) Empty() bool {
	return len(q.Variants) == 0
}

// Patterns returns the variants as SQL LIKE patterns, with LIKE metacharacters escaped.
func (q Query) Patterns() []string {
	out := make([]string, len(q.Variants))
	for i, v := range q.Variants {
		out[i] = "%" + EscapeLike(v) + "%"
	}
	return out
}

// Match reports whether any variant is a substring of any text field (case-insensitive),
// or the skeleton equals the skeleton of any word of the name fields.
func (q Query) Match(textFields, nameFields []string) bool {
	for _, field := range textFields {
		if field == "" {
			continue
		}
		lower := strings.ToLower(field)
		for _, v := range q.Variants {
			if strings.Contains(lower, v) {
				return true
			}
		}
	}
	if q.Skeleton == "" {
		return false
	}
	for _, field := range nameFields {
		for _, w := range normalize.Words(field) {
			if normalize.Skeleton(w) == q.Skeleton {
				return true
			}
		}
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so they match literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
