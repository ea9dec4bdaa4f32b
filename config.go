package authcore

import (
	"errors"
	"time"

	"github.com/hollis-dev/authcore/session"
	"github.com/hollis-dev/authcore/token"
)

// Config assembles the tuning knobs for every subsystem. Build it from
// [DefaultConfig] and override what differs; [Config.Validate] runs during
// [Builder.Build].
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Lock      LockConfig
	Gate      GateConfig
	Audit     AuditConfig
}

// TokenConfig carries signing material and token lifetimes.
type TokenConfig struct {
	// Secret signs both token kinds (HS256). Rotation policy is out of
	// scope; supply it from configuration, never hard-code it.
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// SessionConfig carries session record lifetime and activity coalescing.
type SessionConfig struct {
	TTL              time.Duration
	ActivityInterval time.Duration
}

// RateLimitConfig namespaces the limiter's keys.
type RateLimitConfig struct {
	KeyPrefix string
}

// LockConfig tunes the distributed lock's retry backoff.
type LockConfig struct {
	KeyPrefix string
	RetryBase time.Duration
	RetryCap  time.Duration
}

// GateConfig controls the auth gate's behavior when the revocation store
// is unreachable.
type GateConfig struct {
	// FailOpenRevocation, when true, lets a structurally valid token pass
	// if the blacklist cannot be consulted. Default false: an uncheckable
	// token is rejected. Pick one policy deliberately; do not flip it per
	// call site.
	FailOpenRevocation bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking emitters when the
	// buffer is saturated.
	DropIfFull bool
}

// DefaultConfig returns the portal's production defaults: 15-minute access
// tokens, 7-day refresh tokens, 30-day sessions with 5-minute activity
// coalescing. The token secret has no default and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			TTL:              session.DefaultTTL,
			ActivityInterval: session.DefaultActivityInterval,
		},
		RateLimit: RateLimitConfig{
			KeyPrefix: "ratelimit",
		},
		Lock: LockConfig{
			KeyPrefix: "lock",
			RetryBase: 50 * time.Millisecond,
			RetryCap:  time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if c.Session.TTL < 0 || c.Session.ActivityInterval < 0 {
		return errors.New("config: session durations must not be negative")
	}
	if c.Session.ActivityInterval > 0 && c.Session.TTL > 0 &&
		c.Session.ActivityInterval >= c.Session.TTL {
		return errors.New("config: activity interval must be shorter than session TTL")
	}
	if c.Lock.RetryBase < 0 || c.Lock.RetryCap < 0 {
		return errors.New("config: lock backoff must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("config: audit buffer size must not be negative")
	}
	return nil
}

func (c TokenConfig) toService() token.Config {
	return token.Config{
		Secret:     c.Secret,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
		Issuer:     c.Issuer,
	}
}

func (c SessionConfig) toRegistry() session.Config {
	return session.Config{
		TTL:              c.TTL,
		ActivityInterval: c.ActivityInterval,
	}
}
