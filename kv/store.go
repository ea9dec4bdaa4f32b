// Package kv wraps the Redis client behind the narrow set of primitives the
// authcore components use: plain keys with TTL, counters, sets, sorted sets,
// conditional set-if-absent, and Lua script execution.
//
// The store is the sole synchronization point between process instances;
// nothing above it keeps shared mutable state. Every method honors the
// caller's context and applies a per-command timeout so a slow Redis node
// cannot stall the auth gate or the rate limiter indefinitely.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis transport or server failure surfaced by
// the store. Callers decide per check whether to fail open or closed.
var ErrUnavailable = errors.New("kv store unavailable")

// Default connection timeouts.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultOpTimeout    = 3 * time.Second
)

// Config holds connection settings for a store built by [New]. Callers that
// already hold a client (tests, shared pools) can use [NewWithClient]
// instead and skip this entirely.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OpTimeout bounds each individual command issued through the store,
	// independent of the caller's context deadline.
	OpTimeout time.Duration

	// MaxRetries and the backoff window are handed to go-redis, which
	// reconnects with backoff on transient failures.
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// Store is a thin adapter over a Redis client. It is safe for concurrent
// use; all state lives server-side.
type Store struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	log       *slog.Logger
	owned     bool
}

// New dials Redis with the configured timeouts and verifies the connection
// with a PING before returning.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("kv: address required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := newStore(client, cfg.OpTimeout, log)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership;
// [Store.Close] becomes a no-op.
func NewWithClient(client redis.UniversalClient, log *slog.Logger) *Store {
	return newStore(client, 0, log)
}

func newStore(client redis.UniversalClient, opTimeout time.Duration, log *slog.Logger) *Store {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, opTimeout: opTimeout, log: log}
}

// Close releases the underlying client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Ping reports store availability and round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) wrap(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get returns the value at key, or ("", false, nil) when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, s.wrap(err)
	}
	return val, true, nil
}

// Set writes key with a TTL. ttl <= 0 stores without expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

// SetNX atomically creates key with a TTL only if it does not exist.
// Returns whether the key was created.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return ok, nil
}

// Del removes keys and returns how many existed.
func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return n == 1, nil
}

// Incr atomically increments the counter at key and returns the new value.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// Expire sets a fresh TTL on key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

// TTL returns the remaining lifetime of key. Missing keys report a
// negative duration, matching Redis semantics.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return d, nil
}

// SAdd adds members to the set at key.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SAdd(ctx, key, args...).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

// SRem removes members from the set at key. Best-effort callers (index
// pruning) may ignore the error after logging it.
func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := s.client.SRem(ctx, key, args...).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

// SMembers returns every member of the set at key.
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, s.wrap(err)
	}
	return members, nil
}

// SCard returns the cardinality of the set at key.
func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return n, nil
}

// MGet fetches several keys in one round trip. Missing keys come back as
// empty strings with ok=false in the parallel slice.
func (s *Store) MGet(ctx context.Context, keys ...string) ([]string, []bool, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, s.wrap(err)
	}

	out := make([]string, len(vals))
	ok := make([]bool, len(vals))
	for i, v := range vals {
		if str, isStr := v.(string); isStr {
			out[i] = str
			ok[i] = true
		}
	}
	return out, ok, nil
}

// Eval runs a registered Lua script against the store. Scripts are the only
// place multi-step read-modify-write cycles are allowed to live.
func (s *Store) Eval(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := script.Run(ctx, s.client, keys, args...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.wrap(err)
	}
	return res, nil
}

// Scan enumerates keys matching pattern with a cursor. Administrative use
// only; request paths must go through the explicit per-user indexes.
func (s *Store) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		opCtx, cancel := s.bound(ctx)
		keys, next, err := s.client.Scan(opCtx, cursor, pattern, 1000).Result()
		cancel()
		if err != nil {
			return s.wrap(err)
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Logger exposes the store's logger so components sharing the store log
// through one place.
func (s *Store) Logger() *slog.Logger {
	return s.log
}
