// Package postgres implements tether.SessionStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool; Close on the store
// is a no-op for the pool itself.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	tether "github.com/rwahyudi/tether"
)

// Store implements tether.SessionStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ tether.SessionStore = (*Store)(nil)

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the session_messages table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS session_messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content JSONB NOT NULL,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, seq)`)
	if err != nil {
		return fmt.Errorf("postgres: init index: %w", err)
	}
	return nil
}

// AppendMessage persists one message at the end of a session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg tether.Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("postgres: marshal content: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tether.NewID(), sessionID, string(msg.Role), content, tether.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// Messages returns up to limit most recent messages, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]tether.Message, error) {
	q := `SELECT role, content FROM session_messages WHERE session_id = $1 ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT role, content FROM (
			SELECT seq, role, content FROM session_messages
			WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		) tail ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query messages: %w", err)
	}
	defer rows.Close()

	var msgs []tether.Message
	for rows.Next() {
		var role string
		var content []byte
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		var blocks []tether.ContentBlock
		if err := json.Unmarshal(content, &blocks); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal content: %w", err)
		}
		msgs = append(msgs, tether.Message{Role: tether.Role(role), Content: blocks})
	}
	return msgs, rows.Err()
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }
