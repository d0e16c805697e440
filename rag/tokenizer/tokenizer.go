package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer counts and windows tokens for context budgets.
type Tokenizer interface {
	CountTokens(text string) int
	// Truncate returns the longest prefix of text holding at most max tokens.
	Truncate(text string, max int) string
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer approximates tokens without a vocabulary:
// letter/digit runs are one token, every other non-space rune is its own token.
type SimpleTokenizer struct{}

// NewSimpleTokenizer returns the vocabulary-free tokenizer.
func NewSimpleTokenizer() Tokenizer {
	return SimpleTokenizer{}
}

func (SimpleTokenizer) CountTokens(text string) int {
	return len(spans(text))
}

func (SimpleTokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	sp := spans(text)
	if len(sp) <= max {
		return text
	}
	return strings.TrimSpace(text[:sp[max-1][1]])
}

// spans returns [start,end) byte offsets of each token.
func spans(s string) [][2]int {
	var out [][2]int
	start := -1
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) && !unicode.Is(unicode.Han, r), unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, [2]int{start, i})
			start = -1
		}
		if !unicode.IsSpace(r) {
			out = append(out, [2]int{i, i + len(string(r))})
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(s)})
	}
	return out
}
