// Package middleware adapts the authcore engine to net/http handler
// chains.
package middleware

import (
	"net/http"
	"strings"

	authcore "github.com/hollis-dev/authcore"
)

// Guard returns middleware enforcing the auth gate. The per-request chain
// is strictly linear: no token -> reject (or continue anonymously when
// required is false); token present -> blacklist check -> signature, expiry,
// and kind verification -> identity attached to the request context. The
// blacklist is always consulted, even for a structurally valid token.
func Guard(engine *authcore.Engine, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				if required {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			identity, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAuth is Guard with auth mandatory.
func RequireAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, true)
}

// OptionalAuth is Guard with anonymous passthrough: a missing token
// continues without identity, but a present-and-invalid token is still
// rejected.
func OptionalAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, false)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
