// Package redis shares the fiber-name vocabulary between processes through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is where the vocabulary is stored when no prefix is configured.
const DefaultKey = "fiberkb:vocabulary"

// VocabularyCache implements intent.Cache. Entries never expire; Invalidate is the
// only way to drop them, matching the store's import lifecycle.
type VocabularyCache struct {
	client *redis.Client
	key    string
}

// New creates a cache under prefix + "vocabulary".
func New(client *redis.Client, prefix string) *VocabularyCache {
	key := DefaultKey
	if prefix != "" {
		key = prefix + "vocabulary"
	}
	return &VocabularyCache{client: client, key: key}
}

// Key returns the Redis key holding the vocabulary.
func (c *VocabularyCache) Key() string {
	return c.key
}

// Get returns the cached names; ok is false on a miss.
func (c *VocabularyCache) Get(ctx context.Context) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, false, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	return names, true, nil
}

// Set stores names without expiry.
func (c *VocabularyCache) Set(ctx context.Context, names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}
	if err := c.client.Set(ctx, c.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write vocabulary: %w", err)
	}
	return nil
}

// Invalidate deletes the cached vocabulary.
func (c *VocabularyCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate vocabulary: %w", err)
	}
	return nil
}
