// Package sqlite implements tether.SessionStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	tether "github.com/rwahyudi/tether"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the
// store emits debug logs for every operation.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements tether.SessionStore backed by a local SQLite file.
// Message content is stored as JSON text.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ tether.SessionStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with
		// the blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: session store opened", "path", dbPath)
	return s
}

// Init creates the session_messages table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS session_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: init: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, seq)`)
	if err != nil {
		return fmt.Errorf("sqlite: init index: %w", err)
	}
	return nil
}

// AppendMessage persists one message at the end of a session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg tether.Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("sqlite: marshal content: %w", err)
	}
	start := time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		tether.NewID(), sessionID, string(msg.Role), string(content), tether.NowUnix())
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	s.logger.Debug("sqlite: message appended",
		"session", sessionID, "role", msg.Role, "took", time.Since(start))
	return nil
}

// Messages returns up to limit most recent messages, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]tether.Message, error) {
	q := `SELECT role, content FROM session_messages WHERE session_id = ? ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		// Window the tail: newest N, then flip back to chronological order.
		q = `SELECT role, content FROM (
			SELECT seq, role, content FROM session_messages
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query messages: %w", err)
	}
	defer rows.Close()

	var msgs []tether.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		var blocks []tether.ContentBlock
		if err := json.Unmarshal([]byte(content), &blocks); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal content: %w", err)
		}
		msgs = append(msgs, tether.Message{Role: tether.Role(role), Content: blocks})
	}
	return msgs, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
