package session

import (
	"context"
	"time"

	"github.com/sweetpotato0/fiberkb/message"
)

// State represents the lifecycle of a conversation
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
)

// Record is a persisted conversation: an append-only list of turns owned by one user.
type Record struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	State     State              `json:"state"`
	Messages  []*message.Message `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Messages = message.CloneMessages(r.Messages)
	return &cloned
}

// Tail returns copies of the last n turns.
func (r *Record) Tail(n int) []*message.Message {
	return message.CloneMessages(message.Tail(r.Messages, n))
}

// Store defines the interface for conversation storage backends.
// Load and Delete return an error wrapping errors.ErrNotFound for unknown ids.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Load(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
}
