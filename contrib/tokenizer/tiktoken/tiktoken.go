package tiktoken

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sweetpotato0/fiberkb/rag/tokenizer"
)

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// Tokenizer counts tokens with the BPE encoding of an OpenAI model.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves name as a model first and as an encoding name second.
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

func (t *Tokenizer) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	ids := t.Encode(text)
	if len(ids) <= max {
		return text
	}
	return strings.TrimSpace(t.enc.Decode(ids[:max]))
}
