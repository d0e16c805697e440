package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 200
)

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

type Options struct {
	ChunkSize int
	Overlap   int
	Separator string
}

// Chunker splits document text into overlapping segments bounded by paragraph and
// sentence boundaries. Sizes are measured in characters.
type Chunker struct {
	size    int
	overlap int
	sep     string
}

// Option customizes the chunker.
type Option func(*Options)

// WithChunkSize overrides the default chunk size (characters).
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures how many trailing characters of a chunk are carried into the next one.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WithSeparator sets the paragraph separator.
func WithSeparator(sep string) Option {
	return func(o *Options) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

// New constructs a chunker with the knowledge base defaults (800 characters, 200 overlap).
func New(opts ...Option) *Chunker {
	cfg := &Options{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
		Separator: "\n\n",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	return &Chunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
		sep:     cfg.Separator,
	}
}

// Chunk splits text into ordered chunks. Paragraphs are packed together until the size
// would be exceeded; oversized paragraphs are split on sentence boundaries, and a sentence
// longer than the size is emitted whole. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	w := &window{size: c.size, overlap: c.overlap}
	for _, paragraph := range strings.Split(text, c.sep) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if utf8.RuneCountInString(paragraph) <= c.size {
			w.add(paragraph, "\n\n")
			continue
		}
		for _, sentence := range SplitSentences(paragraph) {
			w.add(sentence, " ")
		}
	}
	return w.finish()
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

type window struct {
	size    int
	overlap int
	current string
	chunks  []string
}

func (w *window) add(piece, sep string) {
	pieceLen := utf8.RuneCountInString(piece)
	if w.current == "" {
		if pieceLen > w.size {
			w.chunks = append(w.chunks, piece)
			return
		}
		w.current = piece
		return
	}

	sepLen := utf8.RuneCountInString(sep)
	if utf8.RuneCountInString(w.current)+sepLen+pieceLen <= w.size {
		w.current += sep + piece
		return
	}

	prev := w.current
	w.chunks = append(w.chunks, strings.TrimSpace(prev))
	if pieceLen > w.size {
		w.chunks = append(w.chunks, piece)
		w.current = ""
		return
	}

	// The carried tail shrinks so the new chunk still fits.
	keep := min(w.overlap, w.size-pieceLen-sepLen)
	if tail := strings.TrimSpace(lastRunes(prev, keep)); tail != "" {
		w.current = tail + sep + piece
		return
	}
	w.current = piece
}

func (w *window) finish() []string {
	if strings.TrimSpace(w.current) != "" {
		w.chunks = append(w.chunks, strings.TrimSpace(w.current))
	}
	return w.chunks
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
