// Package rate implements Redis-backed request rate limiting.
//
// Two algorithms are provided. Check enforces a true sliding window over a
// sorted set of request timestamps and is the variant to use wherever exact
// fairness matters. CheckSimple is a fixed-window counter (INCR plus a TTL
// set on the first hit); it is one round trip cheaper but admits up to 2x
// the limit across a window boundary, which is acceptable for coarse
// endpoint protection such as registration or password reset.
//
// On store failure both variants fail open: a Redis outage degrades rate
// limiting rather than turning into a total service outage. Every fail-open
// decision is logged.
package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hollis-dev/authcore/kv"
)

// Result reports a single limiter decision.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted request leaves the window, i.e.
	// the earliest instant a rejected caller can retry.
	ResetAt time.Time
}

// The evict -> count -> insert cycle must be atomic or two concurrent
// callers could both observe count == limit-1 and both be admitted.
const slidingWindowScript = `
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. cutoff)
local count = redis.call("ZCARD", KEYS[1])
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], tonumber(ARGV[1]), ARGV[4])
  redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[2]))
  return {1, tonumber(ARGV[3]) - count - 1, tonumber(ARGV[1]) + tonumber(ARGV[2])}
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local reset = tonumber(ARGV[1]) + tonumber(ARGV[2])
if oldest[2] then
  reset = tonumber(oldest[2]) + tonumber(ARGV[2])
end
return {0, 0, reset}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Limiter enforces per-identifier limits. It holds no endpoint knowledge;
// the limit and window are supplied on every call and named presets live in
// caller configuration.
type Limiter struct {
	store  *kv.Store
	prefix string
}

// New creates a [Limiter] on the given store. prefix namespaces this
// limiter's keys so independent limiters never share windows.
func New(store *kv.Store, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{store: store, prefix: prefix}
}

func (l *Limiter) slidingKey(identifier string) string {
	return l.prefix + ":sw:" + identifier
}

func (l *Limiter) fixedKey(identifier string) string {
	return l.prefix + ":fw:" + identifier
}

// Check applies sliding-window semantics: requests older than the window
// are evicted, the survivors counted, and the current request admitted only
// if the count is still below limit. Remaining decreases strictly with each
// admitted request; rejected requests are not recorded.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) (Result, error) {
	now := time.Now()
	if limit <= 0 || window <= 0 {
		return Result{Allowed: false, ResetAt: now}, fmt.Errorf("rate: invalid limit %d or window %s", limit, window)
	}

	// Member must be unique per request; concurrent requests in the same
	// millisecond would otherwise collapse into one ZSET entry.
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	res, err := l.store.Eval(ctx, slidingWindowLua,
		[]string{l.slidingKey(identifier)},
		now.UnixMilli(), window.Milliseconds(), limit, member,
	)
	if err != nil {
		l.store.Logger().Warn("rate limiter failing open",
			"identifier", identifier, "error", err)
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 3 {
		l.store.Logger().Warn("rate limiter failing open",
			"identifier", identifier, "error", "malformed script reply")
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	allowed, _ := parts[0].(int64)
	remaining, _ := parts[1].(int64)
	resetMs, _ := parts[2].(int64)

	return Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(resetMs),
	}, nil
}

// CheckSimple applies fixed-window semantics. The first request in a window
// sets the TTL; subsequent requests increment without touching it, so the
// window never slides. Allowed iff the resulting count is within limit.
func (l *Limiter) CheckSimple(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("rate: invalid limit %d or window %s", limit, window)
	}

	key := l.fixedKey(identifier)
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.store.Logger().Warn("rate limiter failing open",
			"identifier", identifier, "error", err)
		return true, nil
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			l.store.Logger().Warn("rate limiter failing open",
				"identifier", identifier, "error", err)
			return true, nil
		}
	}

	return count <= int64(limit), nil
}

// Reset clears all recorded requests for the identifier, in both window
// representations. Administrative override.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	_, err := l.store.Del(ctx, l.slidingKey(identifier), l.fixedKey(identifier))
	return err
}
