// Package sqlstore implements storage.Driver on top of ent's dialect-aware SQL
// builder. The sqlite and postgres drivers embed a Store opened on their
// respective database/sql driver.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/classroom/pkg/llm"
	"github.com/papercomputeco/classroom/pkg/storage"
)

const table = "turns"

var columns = []string{
	"id",
	"session_id",
	"model",
	"messages",
	"reply",
	"partial",
	"created_at",
	"duration_ms",
}

// schema holds the DDL for each supported dialect. Timestamps are unix
// nanoseconds so both dialects scan them into int64.
var schema = map[string][]string{
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			messages TEXT NOT NULL,
			reply TEXT NOT NULL,
			partial BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS turns_session_created ON turns (session_id, created_at)`,
	},
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			messages JSONB NOT NULL,
			reply TEXT NOT NULL,
			partial BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS turns_session_created ON turns (session_id, created_at)`,
	},
}

// Store provides turn storage over an ent SQL driver. It is database-agnostic
// and can be embedded by specific drivers.
type Store struct {
	drv *entsql.Driver
}

// New wraps drv. Call Migrate before first use.
func New(drv *entsql.Driver) *Store {
	return &Store{drv: drv}
}

// Migrate creates the turns table and its index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := schema[s.drv.Dialect()]
	if !ok {
		return fmt.Errorf("unsupported dialect: %s", s.drv.Dialect())
	}

	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Put stores a turn. Storing a turn whose ID already exists is a no-op.
func (s *Store) Put(ctx context.Context, turn *storage.Turn) error {
	if turn == nil {
		return errors.New("cannot store nil turn")
	}
	if turn.ID == "" {
		return errors.New("cannot store turn without id")
	}

	messages := turn.Messages
	if messages == nil {
		messages = []llm.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query, args := s.builder().
		Insert(table).
		Columns(columns...).
		Values(
			turn.ID,
			turn.SessionID,
			turn.Model,
			string(messagesJSON),
			turn.Reply,
			turn.Partial,
			turn.CreatedAt.UnixNano(),
			turn.Duration.Milliseconds(),
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.DoNothing(),
		).
		Query()

	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	return nil
}

// Get retrieves a turn by its ID.
func (s *Store) Get(ctx context.Context, id string) (*storage.Turn, error) {
	b := s.builder()
	query, args := b.
		Select(columns...).
		From(b.Table(table)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	turns, err := s.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}

	return turns[0], nil
}

// ListSession returns the turns of a session ordered by creation time.
func (s *Store) ListSession(ctx context.Context, sessionID string) ([]*storage.Turn, error) {
	b := s.builder()
	query, args := b.
		Select(columns...).
		From(b.Table(table)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")).
		Query()

	return s.query(ctx, query, args)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.drv.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.drv.DB()
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]*storage.Turn, error) {
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []*storage.Turn{}
	for rows.Next() {
		var (
			t          storage.Turn
			messages   string
			createdAt  int64
			durationMS int64
		)
		if err := rows.Scan(
			&t.ID,
			&t.SessionID,
			&t.Model,
			&messages,
			&t.Reply,
			&t.Partial,
			&createdAt,
			&durationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		if err := json.Unmarshal([]byte(messages), &t.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
		t.CreatedAt = time.Unix(0, createdAt).UTC()
		t.Duration = time.Duration(durationMS) * time.Millisecond

		turns = append(turns, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}

// OpenDB wraps an open *sql.DB for the given ent dialect, migrates the
// schema, and returns the Store.
func OpenDB(ctx context.Context, dialectName string, db *sql.DB) (*Store, error) {
	s := New(entsql.OpenDB(dialectName, db))
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
