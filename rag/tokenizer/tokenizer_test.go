package tokenizer

import "testing"

func TestSimpleTokenizerCount(t *testing.T) {
	tok := NewSimpleTokenizer()
	if got := tok.CountTokens("Cotton density: 1.54 g/cm³"); got != 10 {
		t.Fatalf("CountTokens = %d", got)
	}
	if got := tok.CountTokens(""); got != 0 {
		t.Fatalf("empty text counted %d tokens", got)
	}
}

func TestSimpleTokenizerTruncate(t *testing.T) {
	tok := NewSimpleTokenizer()
	if got := tok.Truncate("wool is a protein fiber", 3); got != "wool is a" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := tok.Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate under budget = %q", got)
	}
	if got := tok.Truncate("anything", 0); got != "" {
		t.Fatalf("Truncate to zero = %q", got)
	}
}
