package authcore

import (
	"context"

	"github.com/hollis-dev/authcore/session"
)

// CreateSession registers a sign-in for the user, capturing client IP and
// user agent from the context if the metadata fields are empty.
func (e *Engine) CreateSession(ctx context.Context, userID, email string, meta session.Metadata) (string, error) {
	if meta.IP == "" {
		meta.IP = clientIPFromContext(ctx)
	}
	if meta.UserAgent == "" {
		meta.UserAgent = userAgentFromContext(ctx)
	}

	id, err := e.sessions.Create(ctx, userID, email, meta)
	e.emit(ctx, EventSessionCreated, userID, id, err == nil, err)
	return id, err
}

// GetSession resolves a session id, pruning expired records on sight.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// TouchActivity records request activity, coalescing writes inside the
// configured minimum interval.
func (e *Engine) TouchActivity(ctx context.Context, sessionID string) error {
	return e.sessions.Touch(ctx, sessionID)
}

// ListSessions returns the user's sessions, most recently active first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]session.Session, error) {
	return e.sessions.List(ctx, userID)
}

// DeleteSession signs out one device. Returns whether the session existed.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	existed, err := e.sessions.Delete(ctx, sessionID)
	if existed {
		e.emit(ctx, EventSessionDeleted, "", sessionID, err == nil, err)
	}
	return existed, err
}

// DeleteAllSessions signs the user out everywhere. Returns the number of
// sessions destroyed.
func (e *Engine) DeleteAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := e.sessions.DeleteAll(ctx, userID)
	e.emit(ctx, EventSessionDeleted, userID, "", err == nil, err)
	return n, err
}

// DeleteOtherSessions signs the user out everywhere except keepSessionID.
func (e *Engine) DeleteOtherSessions(ctx context.Context, userID, keepSessionID string) (int, error) {
	n, err := e.sessions.DeleteOthers(ctx, userID, keepSessionID)
	e.emit(ctx, EventSessionDeleted, userID, keepSessionID, err == nil, err)
	return n, err
}

// SessionStats summarizes the user's sessions.
func (e *Engine) SessionStats(ctx context.Context, userID string) (session.Stats, error) {
	return e.sessions.Stats(ctx, userID)
}
