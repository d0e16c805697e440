package tiktoken

import "testing"

func TestTokenizerCountsTokensNotIDs(t *testing.T) {
	tok, err := NewTiktokenTokenizer("text-embedding-3-small")
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}
	text := "Polyester is a synthetic thermoplastic fiber."
	if got, want := tok.CountTokens(text), len(tok.Encode(text)); got != want {
		t.Fatalf("CountTokens = %d, want %d", got, want)
	}
	short := tok.Truncate(text, 3)
	if n := tok.CountTokens(short); n > 3 {
		t.Fatalf("Truncate kept %d tokens", n)
	}
}
