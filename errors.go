package authcore

import (
	"errors"

	"github.com/hollis-dev/authcore/kv"
	"github.com/hollis-dev/authcore/lock"
	"github.com/hollis-dev/authcore/session"
	"github.com/hollis-dev/authcore/token"
)

var (
	// ErrUnauthorized is returned by the auth gate for every rejection:
	// missing token, invalid token, wrong kind, or blacklisted. The
	// sub-reason is never distinguished to callers.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenInvalid mirrors the token service's uniform access-token
	// failure.
	ErrTokenInvalid = token.ErrTokenInvalid

	// ErrRefreshInvalid mirrors the token service's uniform refresh
	// failure, including slot mismatch after rotation.
	ErrRefreshInvalid = token.ErrRefreshInvalid

	// ErrSessionNotFound is a lookup miss on the session registry.
	ErrSessionNotFound = session.ErrNotFound

	// ErrLockNotAcquired is returned when a lock's retries are exhausted.
	ErrLockNotAcquired = lock.ErrNotAcquired

	// ErrStoreUnavailable wraps Redis transport and server failures.
	ErrStoreUnavailable = kv.ErrUnavailable
)
