// Package storage persists completed chat turns so a session's history can be
// listed after the stream that produced it has ended.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/classroom/pkg/llm"
)

// Turn is one request/reply exchange of a chat session.
type Turn struct {
	// ID uniquely identifies the turn. Put is idempotent on ID.
	ID string `json:"id"`

	SessionID string `json:"session_id"`
	Model     string `json:"model"`

	// Messages is the conversation sent upstream for this turn.
	Messages []llm.Message `json:"messages"`

	// Reply is the assistant transcript assembled from the stream.
	Reply string `json:"reply"`

	// Partial is set when the stream broke before completing.
	Partial bool `json:"partial"`

	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// Driver defines the interface for persisting and retrieving turns.
type Driver interface {
	// Put stores a turn. Storing a turn whose ID already exists is a no-op.
	Put(ctx context.Context, turn *Turn) error

	// Get retrieves a turn by its ID. Returns NotFoundError when missing.
	Get(ctx context.Context, id string) (*Turn, error)

	// ListSession returns the turns of a session, oldest first. An unknown
	// session yields an empty slice.
	ListSession(ctx context.Context, sessionID string) ([]*Turn, error)

	// Close closes the store and releases any resources.
	Close() error
}
