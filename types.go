package authcore

// Identity is the authenticated principal the gate attaches to a request.
type Identity struct {
	UserID string
	Email  string
}

// LogoutScope selects which sessions a logout destroys, in addition to
// blacklisting the access token and revoking the refresh slot.
type LogoutScope int

const (
	// LogoutCurrent destroys only the session named in the request.
	LogoutCurrent LogoutScope = iota
	// LogoutAll destroys every session the user has.
	LogoutAll
)

// Audit event types emitted by the engine.
const (
	EventTokenIssued    = "token.issued"
	EventTokenRefreshed = "token.refreshed"
	EventTokenRevoked   = "token.revoked"
	EventSessionCreated = "session.created"
	EventSessionDeleted = "session.deleted"
	EventLogout         = "auth.logout"
	EventAuthRejected   = "auth.rejected"
	EventRateLimited    = "rate.limited"
)
