package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	authcore "github.com/hollis-dev/authcore"
)

// IdentifierFunc derives the rate-limit key from a request. The default
// prefers the authenticated user and falls back to the client IP.
type IdentifierFunc func(r *http.Request) string

// RateLimit returns middleware enforcing a sliding-window limit per
// identifier. Rejected requests get a 429 with Retry-After; admitted ones
// carry the standard X-RateLimit headers.
func RateLimit(engine *authcore.Engine, limit int, window time.Duration, identifier IdentifierFunc) func(http.Handler) http.Handler {
	if identifier == nil {
		identifier = defaultIdentifier
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := engine.CheckRate(r.Context(), identifier(r), limit, window)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))

			if !res.Allowed {
				retryAfter := int(time.Until(res.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func defaultIdentifier(r *http.Request) string {
	if id, ok := authcore.IdentityFromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	return "ip:" + clientIP(r)
}

// clientIP extracts the caller address, trusting the first hop of
// X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
