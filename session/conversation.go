package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	errorskg "github.com/sweetpotato0/fiberkb/errors"
	"github.com/sweetpotato0/fiberkb/message"
	"github.com/sweetpotato0/fiberkb/pkg/logging"
)

// Manager reads and appends conversation turns through a Store.
type Manager struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a conversation manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.WithComponent("session_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewRecord returns an active conversation for userID with a fresh id. It is not
// stored until passed to Create.
func NewRecord(userID string) *Record {
	now := time.Now()
	return &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start creates an empty active conversation for userID.
func (m *Manager) Start(ctx context.Context, userID string) (*Record, error) {
	rec := NewRecord(userID)
	if err := m.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create stores rec together with its first turns.
func (m *Manager) Create(ctx context.Context, rec *Record, msgs ...*message.Message) error {
	rec.Messages = append(rec.Messages, message.CloneMessages(msgs)...)
	if len(msgs) > 0 {
		rec.UpdatedAt = time.Now()
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	m.logger.Debug("conversation started", "id", rec.ID, "user", rec.UserID, "messages", len(rec.Messages))
	return nil
}

// Get loads a conversation.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	return m.store.Load(ctx, id)
}

// History returns the last n turns of a conversation. An unknown id yields no history.
func (m *Manager) History(ctx context.Context, id string, n int) ([]*message.Message, error) {
	if id == "" {
		return nil, nil
	}
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, errorskg.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.Tail(n), nil
}

// Append adds turns to an active conversation.
func (m *Manager) Append(ctx context.Context, id string, msgs ...*message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if rec.State != StateActive {
		return fmt.Errorf("conversation %s is not active: %w", id, errorskg.ErrInvalidInput)
	}
	rec.Messages = append(rec.Messages, message.CloneMessages(msgs)...)
	rec.UpdatedAt = time.Now()
	if err := m.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Deactivate marks a conversation inactive; later appends are rejected.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if rec.State == StateInactive {
		return nil
	}
	rec.State = StateInactive
	rec.UpdatedAt = time.Now()
	return m.store.Save(ctx, rec)
}
