package authcore

import (
	"context"
	"time"

	"github.com/hollis-dev/authcore/kv"
	"github.com/hollis-dev/authcore/lock"
	"github.com/hollis-dev/authcore/rate"
	"github.com/hollis-dev/authcore/session"
	"github.com/hollis-dev/authcore/token"
)

// Engine is the facade over the token service, session registry, rate
// limiter, and lock primitive. Construct it through [Builder.Build]; it is
// immutable afterwards and safe for concurrent use.
type Engine struct {
	config   Config
	store    *kv.Store
	tokens   *token.Service
	sessions *session.Registry
	limiter  *rate.Limiter
	locker   *lock.Locker
	audit    *auditDispatcher
}

// Close flushes the audit pipeline. The injected Redis client stays open;
// whoever created it closes it.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Ping reports store availability and round-trip latency, for health
// endpoints.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	return e.store.Ping(ctx)
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Locker exposes the lock primitive for callers with their own critical
// sections.
func (e *Engine) Locker() *lock.Locker {
	return e.locker
}

func (e *Engine) emit(ctx context.Context, eventType, userID, sessionID string, success bool, err error) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}
