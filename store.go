package tether

import "context"

// SessionStore persists conversation messages keyed by session id.
// Implementations live in store/sqlite and store/postgres.
type SessionStore interface {
	// Init creates required tables.
	Init(ctx context.Context) error
	// AppendMessage persists one message at the end of a session.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
	// Messages returns up to limit most recent messages of a session,
	// oldest first. limit <= 0 means all.
	Messages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Close() error
}

// SessionRecorder is a MessageAdded hook that persists every appended
// message to a SessionStore, so persistence rides the hook system
// instead of the loop.
type SessionRecorder struct {
	store     SessionStore
	sessionID string
}

// NewSessionRecorder creates a recorder for one session.
func NewSessionRecorder(store SessionStore, sessionID string) *SessionRecorder {
	return &SessionRecorder{store: store, sessionID: sessionID}
}

// MessageAdded persists the appended message. Errors propagate to the
// registry, which logs and swallows them; a failed write never affects
// the invocation.
func (r *SessionRecorder) MessageAdded(ctx context.Context, ev *MessageAddedEvent) error {
	return r.store.AppendMessage(ctx, r.sessionID, ev.Message)
}

var _ MessageAddedHook = (*SessionRecorder)(nil)
