package intent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// CommonFibers is the built-in vocabulary, checked before names loaded from the store.
var CommonFibers = []string{
	"cotton", "polyester", "nylon", "wool", "silk", "rayon", "acrylic",
	"linen", "hemp", "bamboo", "viscose", "spandex", "lycra", "modal",
	"tencel", "kevlar", "nomex", "teflon", "polypropylene", "jute",
	"aramid", "carbon", "glass", "elastane", "acetate", "lyocell",
}

// NameSource loads the names of the fibers in the database.
type NameSource interface {
	FiberNames(ctx context.Context) ([]string, error)
}

// Cache holds the merged vocabulary between explicit invalidations.
type Cache interface {
	// Get returns the cached names; ok is false on a miss.
	Get(ctx context.Context) (names []string, ok bool, err error)
	Set(ctx context.Context, names []string) error
	Invalidate(ctx context.Context) error
}

// Vocabulary is the get-or-populate fiber-name list used for entity extraction.
// It never expires on its own; Invalidate is the only way to refresh it.
type Vocabulary struct {
	source NameSource
	cache  Cache
	mu     sync.Mutex
}

// NewVocabulary builds a vocabulary. A nil source yields the built-in names only;
// a nil cache keeps the list in process memory.
func NewVocabulary(source NameSource, cache Cache) *Vocabulary {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Vocabulary{source: source, cache: cache}
}

// Names returns the built-in names followed by store names, lowercase and deduplicated.
func (v *Vocabulary) Names(ctx context.Context) ([]string, error) {
	if names, ok, err := v.cache.Get(ctx); err == nil && ok {
		return names, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if names, ok, err := v.cache.Get(ctx); err == nil && ok {
		return names, nil
	}

	names := mergeNames(CommonFibers, nil)
	if v.source != nil {
		stored, err := v.source.FiberNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("load fiber names: %w", err)
		}
		names = mergeNames(names, stored)
	}
	if err := v.cache.Set(ctx, names); err != nil {
		return nil, fmt.Errorf("cache fiber names: %w", err)
	}
	return names, nil
}

// Invalidate drops the cached list so the next lookup reloads it.
func (v *Vocabulary) Invalidate(ctx context.Context) error {
	return v.cache.Invalidate(ctx)
}

func mergeNames(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, n := range list {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// MemoryCache keeps the vocabulary in process memory.
type MemoryCache struct {
	mu    sync.RWMutex
	names []string
	valid bool
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(context.Context) ([]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return nil, false, nil
	}
	return append([]string(nil), c.names...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append([]string(nil), names...)
	c.valid = true
	return nil
}

func (c *MemoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = nil
	c.valid = false
	return nil
}
