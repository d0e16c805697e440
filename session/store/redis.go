// Package store holds the shared conversation backend used when several processes
// answer chat turns for the same users.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/session"
)

// DefaultPrefix namespaces conversation keys.
const DefaultPrefix = "fiberkb:conversation:"

// RedisStore keeps each conversation as a JSON value and indexes ids in a sorted set
// scored by the last update, so List returns the most recent conversations first.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A ttl of 0 keeps conversations until deleted.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("conversation record needs an id: %w", errorskg.ErrInvalidInput)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", record.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(record.ID), raw, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(record.UpdatedAt.UnixMilli()), Member: record.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save conversation %s: %w", record.ID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*session.Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}

	var record session.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &record, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}
	return nil
}

// List returns conversation ids, most recently updated first. Ids whose value expired
// through the TTL are pruned from the index on the way.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if s.ttl == 0 || len(ids) == 0 {
		return ids, nil
	}

	pipe := s.client.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	live := ids[:0]
	var expired []any
	for i, id := range ids {
		if checks[i].Val() > 0 {
			live = append(live, id)
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("prune conversation index: %w", err)
		}
	}
	return live, nil
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check conversation %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}
