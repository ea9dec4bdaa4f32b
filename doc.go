// Package authcore provides the Redis-backed authentication core for the
// user portal: signed access/refresh token pairs with revocation, a
// multi-session-per-user registry, sliding-window rate limiting, and a
// distributed lock primitive.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build]. No in-process shared mutable state exists in the token,
// session, or rate-limit paths. The key-value store is the only
// synchronization point, and every mutation there uses an atomic primitive
// (conditional set, atomic increment, Lua script).
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// value types, and context helpers. The HTTP route layer, relational
// schema, and email delivery are external collaborators: the core never
// parses raw HTTP and never leaks store error details into responses.
//
// # Failure policy
//
// The rate limiter fails open on store outages so that a Redis failure
// degrades into missing rate limits rather than a total outage. The auth
// gate's revocation check fails closed by default (a token that cannot be
// checked against the blacklist is rejected); see [GateConfig].
package authcore
