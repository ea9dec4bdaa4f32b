package middleware

import (
	"net/http"

	authcore "github.com/hollis-dev/authcore"
)

// SessionCookieName is where clients carry the opaque session id.
const SessionCookieName = "session-id"

// TrackSession returns middleware that records activity on the request's
// session, if one is presented. Tracking is best-effort: a missing session
// or a store failure never blocks the request. Heartbeats inside the
// registry's coalescing interval don't write at all.
func TrackSession(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				_ = engine.TouchActivity(r.Context(), cookie.Value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
