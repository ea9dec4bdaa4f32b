package authcore

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hollis-dev/authcore/kv"
	"github.com/hollis-dev/authcore/lock"
	"github.com/hollis-dev/authcore/rate"
	"github.com/hollis-dev/authcore/session"
	"github.com/hollis-dev/authcore/token"
)

// Builder assembles an [Engine]. The Redis client is injected explicitly;
// the engine owns no global connection state, so several engines with
// independent stores can coexist in one process.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a [Builder] seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis injects the Redis client all components share. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger used for degraded-mode warnings. Defaults to
// slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the destination for audit events. A nil sink with
// audit enabled falls back to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	store := kv.NewWithClient(b.redis, b.logger)
	locker := lock.New(store, b.config.Lock.KeyPrefix, b.config.Lock.RetryBase, b.config.Lock.RetryCap)

	tokens, err := token.NewService(b.config.Token.toService(), store, locker)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   b.config,
		store:    store,
		tokens:   tokens,
		sessions: session.NewRegistry(store, b.config.Session.toRegistry()),
		limiter:  rate.New(store, b.config.RateLimit.KeyPrefix),
		locker:   locker,
		audit:    newAuditDispatcher(b.config.Audit, b.auditSink),
	}

	b.built = true
	return engine, nil
}
