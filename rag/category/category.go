// Package category resolves category-style queries ("natural fibers",
// "thermoplastic") to exact relational matches.
package category

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/fiberkb/fiber"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// DefaultLimit caps the fibers returned for one category match.
const DefaultLimit = 20

// Keywords maps each category kind to the words that signal it.
var Keywords = map[fiber.CategoryKind][]string{
	fiber.KindClass: {"natural", "synthetic", "animal", "regenerated", "mineral"},
	fiber.KindSubtype: {
		"bast", "leaf", "seed", "hair", "secretion", "protein", "ester",
		"cellulose_bast", "cellulose_leaf", "cellulose_seed", "cellulose_ester",
		"regenerated_protein", "cellulose", "cellulosic",
	},
	fiber.KindSyntheticType: {"thermoplastic", "thermoset", "melting", "non melting"},
	fiber.KindPolymerizationType: {
		"polymerization", "polycondensation", "polyaddition",
		"chain-growth", "step-growth", "radical", "ring-opening",
	},
}

// Store is the relational access the resolver needs.
type Store interface {
	// FindLookups returns lookup rows of kind whose lowercased name contains any of the patterns.
	FindLookups(ctx context.Context, kind fiber.CategoryKind, patterns []string) ([]fiber.Lookup, error)
	// FibersByLookup returns active fibers referencing the named lookup (name compared case-insensitively).
	FibersByLookup(ctx context.Context, kind fiber.CategoryKind, name string, limit int) ([]*fiber.Record, error)
}

// Result is a successful category resolution.
type Result struct {
	Fibers []*fiber.Record
	Kind   fiber.CategoryKind
	// Label is the keyword that triggered the match.
	Label string
}

// Resolver detects category keywords and joins to the fibers of matching lookups.
type Resolver struct {
	store  Store
	limit  int
	logger *slog.Logger
}

// Option customizes the resolver.
type Option func(*Resolver)

// WithLimit overrides DefaultLimit.
func WithLimit(limit int) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// NewResolver constructs a resolver over store.
func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		limit:  DefaultLimit,
		logger: logging.WithComponent("category"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve tries kinds in priority order and returns the first keyword whose lookups
// yield fibers. A nil result with a nil error means no category matched.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Result, error) {
	lower := strings.ToLower(query)

	for _, kind := range fiber.CategoryKinds {
		for _, kw := range Keywords[kind] {
			if !strings.Contains(lower, kw) {
				continue
			}

			lookups, err := r.store.FindLookups(ctx, kind, Patterns(kw))
			if err != nil {
				return nil, fmt.Errorf("find %s lookups for %q: %w", kind, kw, err)
			}
			if len(lookups) == 0 {
				r.logger.Debug("category keyword without lookup rows", "kind", kind, "keyword", kw)
				continue
			}

			fibers, err := r.collect(ctx, kind, lookups)
			if err != nil {
				return nil, err
			}
			if len(fibers) > 0 {
				r.logger.Info("category resolved", "kind", kind, "keyword", kw, "fibers", len(fibers))
				return &Result{Fibers: fibers, Kind: kind, Label: kw}, nil
			}
		}
	}
	return nil, nil
}

func (r *Resolver) collect(ctx context.Context, kind fiber.CategoryKind, lookups []fiber.Lookup) ([]*fiber.Record, error) {
	seen := make(map[int64]struct{})
	var out []*fiber.Record
	for _, l := range lookups {
		recs, err := r.store.FibersByLookup(ctx, kind, l.Name, r.limit)
		if err != nil {
			return nil, fmt.Errorf("fibers for %s %q: %w", kind, l.Name, err)
		}
		for _, rec := range recs {
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			out = append(out, rec)
		}
	}
	if len(out) > r.limit {
		out = out[:r.limit]
	}
	return out, nil
}

// Patterns returns the name fragments searched for a keyword: the keyword itself and
// the keyword with trailing 'i'/'c' characters stripped ("cellulosic" -> "cellulos").
func Patterns(keyword string) []string {
	stripped := strings.TrimRight(keyword, "ic")
	if stripped == "" || stripped == keyword {
		return []string{keyword}
	}
	return []string{keyword, stripped}
}
