// Package lock provides a Redis-backed mutual-exclusion primitive for short
// critical sections spanning process instances.
//
// Acquisition is an atomic create-if-absent with expiry; the stored value is
// an owner token so that release can verify ownership with a compare-and-
// delete. Without that check, a holder that outlives its TTL could delete a
// lock already re-acquired by someone else.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hollis-dev/authcore/kv"
)

// ErrNotAcquired is returned when every acquisition attempt found the lock
// held by another owner.
var ErrNotAcquired = errors.New("lock not acquired")

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLua = redis.NewScript(releaseScript)

const (
	defaultRetryBase = 50 * time.Millisecond
	defaultRetryCap  = time.Second
)

// Locker acquires and releases named locks on a shared store.
type Locker struct {
	store     *kv.Store
	prefix    string
	retryBase time.Duration
	retryCap  time.Duration
}

// Handle represents one successful acquisition. Only the holder of the
// matching owner token can release the lock.
type Handle struct {
	name  string
	owner string
}

// New creates a [Locker]. retryBase is the first retry delay, growing
// linearly per attempt and capped at retryCap; zero values take defaults.
func New(store *kv.Store, prefix string, retryBase, retryCap time.Duration) *Locker {
	if prefix == "" {
		prefix = "lock"
	}
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	if retryCap <= 0 {
		retryCap = defaultRetryCap
	}
	return &Locker{store: store, prefix: prefix, retryBase: retryBase, retryCap: retryCap}
}

func (l *Locker) key(name string) string {
	return l.prefix + ":" + name
}

// Acquire attempts to take the named lock, retrying up to maxRetries times
// with increasing backoff. On success the returned [Handle] must eventually
// be passed to [Locker.Release]; the lock also self-expires after ttl so a
// crashed holder cannot wedge the system.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration, maxRetries int) (*Handle, error) {
	if ttl <= 0 {
		return nil, errors.New("lock: ttl must be positive")
	}

	owner := uuid.NewString()
	key := l.key(name)

	for attempt := 0; ; attempt++ {
		ok, err := l.store.SetNX(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Handle{name: name, owner: owner}, nil
		}
		if attempt >= maxRetries {
			return nil, ErrNotAcquired
		}

		backoff := l.retryBase * time.Duration(attempt+1)
		if backoff > l.retryCap {
			backoff = l.retryCap
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release frees the lock if and only if the handle still owns it. Returns
// whether a deletion occurred; false means the lock had already expired and
// possibly been re-acquired, which the caller may want to log.
func (l *Locker) Release(ctx context.Context, h *Handle) (bool, error) {
	if h == nil {
		return false, nil
	}

	res, err := l.store.Eval(ctx, releaseLua, []string{l.key(h.name)}, h.owner)
	if err != nil {
		return false, err
	}
	deleted, _ := res.(int64)
	return deleted == 1, nil
}

// WithLock runs fn while holding the named lock, releasing it on every exit
// path. Acquisition failure returns [ErrNotAcquired] without running fn;
// fn's error propagates unchanged.
func (l *Locker) WithLock(ctx context.Context, name string, ttl time.Duration, maxRetries int, fn func(ctx context.Context) error) error {
	h, err := l.Acquire(ctx, name, ttl, maxRetries)
	if err != nil {
		return err
	}
	defer func() {
		// Best effort: the TTL bounds the damage if release fails.
		if _, relErr := l.Release(context.WithoutCancel(ctx), h); relErr != nil {
			l.store.Logger().Warn("lock release failed", "lock", name, "error", relErr)
		}
	}()

	return fn(ctx)
}
