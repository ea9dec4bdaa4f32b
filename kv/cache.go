package kv

import (
	"context"
	"encoding/json"
	"time"
)

// GetOrLoad is an explicit cache-aside read: return the cached value at key
// if present, otherwise call loader, store its result with ttl, and return
// it. The store is a cache here, not the source of truth, so a store
// failure on either side degrades to calling loader directly.
//
// Call sites choose their own key; there is no reflection or interception.
func GetOrLoad[T any](ctx context.Context, s *Store, key string, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	cached, found, err := s.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache read failed, loading directly", "key", key, "error", err)
	} else if found {
		var value T
		if err := json.Unmarshal([]byte(cached), &value); err == nil {
			return value, nil
		}
		// A corrupt entry is replaced by a fresh load.
	}

	value, err := loader(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := s.Set(ctx, key, string(data), ttl); err != nil {
		s.log.Warn("cache write failed", "key", key, "error", err)
	}

	return value, nil
}

// Invalidate deletes every cache entry matching pattern (glob syntax).
// Returns how many entries were removed. Meant for write paths that must
// flush derived reads; request paths should prefer exact-key deletes.
func Invalidate(ctx context.Context, s *Store, pattern string) (int64, error) {
	var keys []string
	err := s.Scan(ctx, pattern, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.Del(ctx, keys...)
}
