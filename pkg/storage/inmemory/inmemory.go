// Package inmemory provides a map-backed storage.Driver for tests and
// single-process deployments.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/papercomputeco/classroom/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards turns and sessions
	mu sync.RWMutex

	// turns maps turn IDs to turns
	turns map[string]*storage.Turn

	// sessions maps session IDs to turn IDs in insertion order
	sessions map[string][]string
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		turns:    make(map[string]*storage.Turn),
		sessions: make(map[string][]string),
	}
}

// Put stores a copy of turn. A turn whose ID already exists is ignored.
func (d *Driver) Put(_ context.Context, turn *storage.Turn) error {
	if turn == nil {
		return errors.New("cannot store nil turn")
	}
	if turn.ID == "" {
		return errors.New("cannot store turn without id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.turns[turn.ID]; ok {
		return nil
	}

	d.turns[turn.ID] = clone(turn)
	d.sessions[turn.SessionID] = append(d.sessions[turn.SessionID], turn.ID)
	return nil
}

// Get retrieves a turn by its ID.
func (d *Driver) Get(_ context.Context, id string) (*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	turn, ok := d.turns[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return clone(turn), nil
}

// ListSession returns the turns of a session ordered by creation time.
func (d *Driver) ListSession(_ context.Context, sessionID string) ([]*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.sessions[sessionID]
	turns := make([]*storage.Turn, 0, len(ids))
	for _, id := range ids {
		turns = append(turns, clone(d.turns[id]))
	}

	slices.SortStableFunc(turns, func(a, b *storage.Turn) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return turns, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func clone(t *storage.Turn) *storage.Turn {
	c := *t
	c.Messages = slices.Clone(t.Messages)
	return &c
}
