package authcore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollis-dev/authcore/session"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestEngine(t *testing.T, mutate func(*Config), sink AuditSink) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Lock.RetryBase = time.Millisecond
	cfg.Lock.RetryCap = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return engine, mr
}

func TestLoginRefreshLogoutFlow(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "Mozilla/5.0")

	// Login: token pair plus a registered session.
	pair, err := engine.IssueTokenPair(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)
	sessionID, err := engine.CreateSession(ctx, "user-1", "u1@example.com", session.Metadata{})
	require.NoError(t, err)

	// The session picked up client context.
	sess, err := engine.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", sess.IP)
	assert.Equal(t, "Mozilla/5.0", sess.UserAgent)

	// Authenticated request.
	id, err := engine.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)

	// Refresh rotates; the old refresh token dies, the new pair works.
	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	_, err = engine.Authenticate(ctx, rotated.AccessToken)
	require.NoError(t, err)

	// Logout of the current device.
	require.NoError(t, engine.Logout(ctx, rotated.AccessToken, sessionID, LogoutCurrent))

	// The presented access token is dead even though unexpired.
	_, err = engine.Authenticate(ctx, rotated.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The refresh slot is empty.
	_, err = engine.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	// The session is gone.
	_, err = engine.GetSession(ctx, sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// But the older access token was never blacklisted and still passes
	// the gate: revocation is per token, not per user.
	_, err = engine.Authenticate(ctx, pair.AccessToken)
	assert.NoError(t, err)
}

func TestLogoutAllDestroysEverySession(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	pair, err := engine.IssueTokenPair(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := engine.CreateSession(ctx, "user-1", "u1@example.com", session.Metadata{})
		require.NoError(t, err)
	}

	require.NoError(t, engine.Logout(ctx, pair.AccessToken, "", LogoutAll))

	sessions, err := engine.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestLogoutRequiresValidAccessToken(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	err := engine.Logout(context.Background(), "not.a.jwt", "", LogoutCurrent)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteOtherSessionsKeepsCurrent(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := engine.CreateSession(ctx, "user-1", "u1@example.com", session.Metadata{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := engine.DeleteOtherSessions(ctx, "user-1", ids[2])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sessions, err := engine.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, ids[2], sessions[0].ID)
}

func TestAuthenticateFailsClosedOnStoreOutage(t *testing.T) {
	engine, mr := newTestEngine(t, nil, nil)
	ctx := context.Background()

	pair, err := engine.IssueTokenPair(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)

	mr.Close()

	// Blacklist unreachable: a structurally valid token is rejected.
	_, err = engine.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateFailOpenRevocation(t *testing.T) {
	engine, mr := newTestEngine(t, func(cfg *Config) {
		cfg.Gate.FailOpenRevocation = true
	}, nil)
	ctx := context.Background()

	pair, err := engine.IssueTokenPair(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)

	mr.Close()

	id, err := engine.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)

	// Signature verification still applies; fail-open only skips the
	// revocation lookup.
	_, err = engine.Authenticate(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _ := newTestEngine(t, nil, sink)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	pair, err := engine.IssueTokenPair(ctx, "user-1", "u1@example.com")
	require.NoError(t, err)
	sessionID, err := engine.CreateSession(ctx, "user-1", "u1@example.com", session.Metadata{})
	require.NoError(t, err)
	require.NoError(t, engine.Logout(ctx, pair.AccessToken, sessionID, LogoutCurrent))

	// Close flushes the dispatcher, so every emitted event is buffered in
	// the sink by the time it returns.
	engine.Close()
	assert.Zero(t, engine.AuditDropped())

	byType := map[string]AuditEvent{}
	for {
		select {
		case event := <-sink.Events():
			byType[event.EventType] = event
			continue
		default:
		}
		break
	}

	require.Contains(t, byType, EventTokenIssued)
	require.Contains(t, byType, EventSessionCreated)
	require.Contains(t, byType, EventLogout)

	issued := byType[EventTokenIssued]
	assert.True(t, issued.Success)
	assert.Equal(t, "user-1", issued.UserID)
	assert.Equal(t, "203.0.113.7", issued.IP)

	created := byType[EventSessionCreated]
	assert.Equal(t, sessionID, created.SessionID)
}

func TestRateLimitEngineSurface(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := engine.CheckRate(ctx, "ip:203.0.113.7", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := engine.CheckRate(ctx, "ip:203.0.113.7", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	require.NoError(t, engine.ResetRate(ctx, "ip:203.0.113.7"))
	res, err = engine.CheckRate(ctx, "ip:203.0.113.7", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBuilderValidation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, err = New().Build()
	assert.Error(t, err, "redis client is required")

	// DefaultConfig carries no secret.
	_, err = New().WithRedis(rdb).Build()
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	builder := New().WithConfig(cfg).WithRedis(rdb)
	engine, err := builder.Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = builder.Build()
	assert.Error(t, err, "builder is single use")
}
