package retrieval

// Options tunes the hybrid search.
type Options struct {
	// Threshold is the minimum cosine similarity of a semantic hit.
	Threshold float64
	// Limit caps semantic hits and, separately, keyword hits.
	Limit int
	// SparseBelow triggers the keyword supplement when fewer semantic hits were found.
	SparseBelow int
	// FallbackScore is the similarity assigned to keyword-only hits.
	FallbackScore float64
	// HistoryWindow is how many trailing turns are scanned for a fiber name.
	HistoryWindow int
}

// Option customizes the engine.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Threshold:     0.45,
		Limit:         15,
		SparseBelow:   8,
		FallbackScore: 0.75,
		HistoryWindow: 6,
	}
}

// WithThreshold overrides the semantic similarity threshold.
func WithThreshold(th float64) Option {
	return func(o *Options) {
		if th >= 0 && th <= 1 {
			o.Threshold = th
		}
	}
}

// WithLimit overrides the result limit.
func WithLimit(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.Limit = limit
		}
	}
}

// WithSparseBelow overrides the semantic hit count under which keyword search supplements.
func WithSparseBelow(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.SparseBelow = n
		}
	}
}

// WithFallbackScore overrides the score given to keyword-only hits.
func WithFallbackScore(score float64) Option {
	return func(o *Options) {
		if score > 0 && score <= 1 {
			o.FallbackScore = score
		}
	}
}

// WithHistoryWindow overrides how many trailing turns carry a fiber name forward.
func WithHistoryWindow(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.HistoryWindow = n
		}
	}
}
