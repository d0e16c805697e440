// Package inmemory keeps conversations in process memory. It backs the CLI and tests;
// conversations do not survive a restart.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/session"
)

// DefaultMaxConversations bounds a Store built without WithMaxConversations.
const DefaultMaxConversations = 1000

// Store implements session.Store. When full, saving a new conversation evicts the one
// updated least recently.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*session.Record
	max           int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxConversations sets the eviction bound; n <= 0 disables eviction.
func WithMaxConversations(n int) Option {
	return func(s *Store) { s.max = n }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*session.Record),
		max:           DefaultMaxConversations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a copy of the record.
func (s *Store) Save(_ context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("conversation record needs an id: %w", errorskg.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[record.ID]; !exists && s.max > 0 && len(s.conversations) >= s.max {
		s.evictOldest()
	}
	s.conversations[record.ID] = record.Clone()
	return nil
}

func (s *Store) evictOldest() {
	var oldest *session.Record
	for _, rec := range s.conversations {
		if oldest == nil || rec.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = rec
		}
	}
	if oldest != nil {
		delete(s.conversations, oldest.ID)
	}
}

// Load returns a copy of the stored record.
func (s *Store) Load(_ context.Context, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; !exists {
		return fmt.Errorf("conversation %s: %w", id, errorskg.ErrNotFound)
	}
	delete(s.conversations, id)
	return nil
}

// List returns conversation ids, most recently updated first.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	recs := make([]*session.Record, 0, len(s.conversations))
	for _, rec := range s.conversations {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b *session.Record) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids, nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.conversations[id]
	return exists, nil
}
