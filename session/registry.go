// Package session tracks logical sign-ins (device/browser) per user.
//
// Sessions are deliberately decoupled from the JWT access token: "sign out
// this device" and "revoke this access token" stay independent operations.
// A user can hold a valid access token with no registered session, or the
// reverse, depending on client behavior. The auth gate never consults this
// registry, and session-management UI never consults the token service.
//
// Each session has its own expiring record plus an entry in a per-user set
// of session ids. The set is the authoritative index for enumeration; a
// dangling id found during a read is pruned on the spot. Key-space scans
// are never used to find sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/hollis-dev/authcore/internal"
	"github.com/hollis-dev/authcore/kv"
)

// ErrNotFound is returned when a session id resolves to nothing. It is a
// lookup miss, not a failure.
var ErrNotFound = errors.New("session not found")

// Defaults taken from the portal's production settings.
const (
	DefaultTTL              = 30 * 24 * time.Hour
	DefaultActivityInterval = 5 * time.Minute

	sessionPrefix   = "session:"
	userSetPrefix   = "user_sessions:"
	activeWindow24h = 24 * time.Hour
)

// Session is one registry entry.
type Session struct {
	ID           string    `json:"-"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Metadata is the optional client context captured at sign-in.
type Metadata struct {
	IP        string
	UserAgent string
}

// Stats summarizes a user's sessions, derived entirely from [Registry.List].
type Stats struct {
	Total           int
	ActiveLast24h   int
	DistinctDevices int
	DistinctIPs     int
}

// Config tunes record lifetime and activity-write coalescing.
type Config struct {
	// TTL is the session record lifetime, refreshed on activity.
	TTL time.Duration
	// ActivityInterval is the minimum gap between persisted activity
	// updates. Touches inside the gap are absorbed to keep write
	// amplification down under high request rates from one session.
	ActivityInterval time.Duration
}

// Registry is the session store. Safe for concurrent use.
type Registry struct {
	store  *kv.Store
	config Config
}

// NewRegistry creates a [Registry]; zero config fields take defaults.
func NewRegistry(store *kv.Store, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ActivityInterval <= 0 {
		cfg.ActivityInterval = DefaultActivityInterval
	}
	return &Registry{store: store, config: cfg}
}

func sessionKey(id string) string { return sessionPrefix + id }

func userSetKey(userID string) string { return userSetPrefix + userID }

// Create registers a new session and returns its id.
func (r *Registry) Create(ctx context.Context, userID, email string, meta Metadata) (string, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess := Session{
		ID:           id,
		UserID:       userID,
		Email:        email,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(r.config.TTL),
	}

	if err := r.write(ctx, &sess); err != nil {
		return "", err
	}

	if err := r.store.SAdd(ctx, userSetKey(userID), id); err != nil {
		return "", err
	}
	// Keep the index alive at least as long as its newest member.
	if err := r.store.Expire(ctx, userSetKey(userID), r.config.TTL); err != nil {
		return "", err
	}

	return id, nil
}

// Get resolves a session id. Expired records are deleted on sight even
// though the store TTL should already have evicted them.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !sess.ExpiresAt.After(time.Now()) {
		if _, delErr := r.Delete(ctx, id); delErr != nil {
			return nil, delErr
		}
		return nil, ErrNotFound
	}

	return sess, nil
}

// Touch records request activity on the session. Updates inside the
// coalescing interval are absorbed without a write; otherwise the record
// is rewritten with a fresh TTL.
func (r *Registry) Touch(ctx context.Context, id string) error {
	sess, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	if now.Sub(sess.LastActivity) < r.config.ActivityInterval {
		return nil
	}

	sess.LastActivity = now
	sess.ExpiresAt = now.Add(r.config.TTL)
	return r.write(ctx, sess)
}

// List returns the user's sessions ordered most-recently-active first.
// Dangling ids discovered along the way are pruned from the index.
func (r *Registry) List(ctx context.Context, userID string) ([]Session, error) {
	ids, err := r.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Session{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}

	vals, present, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sessions := make([]Session, 0, len(ids))
	var dangling []string
	for i, id := range ids {
		if !present[i] {
			dangling = append(dangling, id)
			continue
		}

		var sess Session
		if err := json.Unmarshal([]byte(vals[i]), &sess); err != nil {
			dangling = append(dangling, id)
			continue
		}
		sess.ID = id
		if !sess.ExpiresAt.After(now) {
			dangling = append(dangling, id)
			continue
		}

		sessions = append(sessions, sess)
	}

	if len(dangling) > 0 {
		if err := r.store.SRem(ctx, userSetKey(userID), dangling...); err != nil {
			r.store.Logger().Warn("session index prune failed",
				"user", userID, "error", err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})

	return sessions, nil
}

// Delete removes one session and its index entry. Returns whether the
// record existed.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	sess, err := r.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := r.store.SRem(ctx, userSetKey(sess.UserID), id); err != nil {
		return false, err
	}

	n, err := r.store.Del(ctx, sessionKey(id))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteAll removes every session for the user and the index itself.
// Returns how many live records were deleted.
func (r *Registry) DeleteAll(ctx context.Context, userID string) (int, error) {
	ids, err := r.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return 0, err
	}

	var deleted int
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = sessionKey(id)
		}
		n, err := r.store.Del(ctx, keys...)
		if err != nil {
			return 0, err
		}
		deleted = int(n)
	}

	if _, err := r.store.Del(ctx, userSetKey(userID)); err != nil {
		return deleted, err
	}

	return deleted, nil
}

// DeleteOthers removes every session for the user except keepID. Used by
// "sign out everywhere else". Returns how many records were deleted.
func (r *Registry) DeleteOthers(ctx context.Context, userID, keepID string) (int, error) {
	ids, err := r.store.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return 0, err
	}

	var keys []string
	var victims []string
	for _, id := range ids {
		if id == keepID {
			continue
		}
		keys = append(keys, sessionKey(id))
		victims = append(victims, id)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.store.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}
	if err := r.store.SRem(ctx, userSetKey(userID), victims...); err != nil {
		return int(n), err
	}

	return int(n), nil
}

// Stats derives summary numbers from the live session list.
func (r *Registry) Stats(ctx context.Context, userID string) (Stats, error) {
	sessions, err := r.List(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	cutoff := time.Now().Add(-activeWindow24h)
	devices := make(map[string]struct{})
	ips := make(map[string]struct{})

	stats := Stats{Total: len(sessions)}
	for _, sess := range sessions {
		if sess.LastActivity.After(cutoff) {
			stats.ActiveLast24h++
		}
		ua := sess.UserAgent
		if ua == "" {
			ua = "unknown"
		}
		devices[ua] = struct{}{}

		ip := sess.IP
		if ip == "" {
			ip = "unknown"
		}
		ips[ip] = struct{}{}
	}

	stats.DistinctDevices = len(devices)
	stats.DistinctIPs = len(ips)
	return stats, nil
}

func (r *Registry) load(ctx context.Context, id string) (*Session, error) {
	data, found, err := r.store.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// A corrupt record is unrecoverable; treat as missing.
		return nil, ErrNotFound
	}
	sess.ID = id
	return &sess, nil
}

func (r *Registry) write(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, sessionKey(sess.ID), string(data), r.config.TTL)
}
