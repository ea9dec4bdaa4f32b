// Package token issues, verifies, refreshes, and revokes the signed
// access/refresh token pairs that authorize API calls.
//
// Both tokens are self-contained HS256 JWTs carrying the subject's user id,
// email, and a kind discriminator. Access tokens are short-lived and never
// persisted unless explicitly blacklisted at logout. Refresh tokens are
// long-lived and tracked server-side in a single slot per user: issuing a
// new pair silently supersedes the previous refresh token, so refresh
// verification must check slot membership, not just the signature.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hollis-dev/authcore/internal"
	"github.com/hollis-dev/authcore/kv"
	"github.com/hollis-dev/authcore/lock"
)

// Kind discriminates the two token roles. Every verification checks it;
// an access token is never accepted where a refresh token is required and
// vice versa.
type Kind string

const (
	// KindAccess marks short-lived API credentials.
	KindAccess Kind = "access"
	// KindRefresh marks the long-lived rotation credential.
	KindRefresh Kind = "refresh"
)

var (
	// ErrTokenInvalid covers every access-token failure: malformed, bad
	// signature, expired, wrong kind. Callers never learn which, to avoid
	// oracle attacks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshInvalid is the refresh-side equivalent, including
	// presented-token-does-not-match-slot.
	ErrRefreshInvalid = errors.New("invalid refresh token")
)

const (
	refreshSlotPrefix = "refresh_token:"
	blacklistPrefix   = "blacklist:"
	rotateLockPrefix  = "refresh-rotate:"

	rotateLockTTL     = 5 * time.Second
	rotateLockRetries = 3
)

// Claims is the payload embedded in both token kinds.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Kind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Pair is the result of login or refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds, for clients that
	// schedule their own refresh.
	ExpiresIn int
}

// Config holds the signing material and lifetimes.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// Service implements the token lifecycle. Safe for concurrent use; all
// mutable state lives in the store.
type Service struct {
	config Config
	store  *kv.Store
	locker *lock.Locker
}

// NewService validates cfg and returns a [Service]. locker may be nil, in
// which case refresh rotation runs unguarded (two concurrent refreshes for
// one user may then both succeed against the old slot value).
func NewService(cfg Config, store *kv.Store, locker *lock.Locker) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token: secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("token: refresh TTL must exceed access TTL")
	}
	return &Service{config: cfg, store: store, locker: locker}, nil
}

// IssuePair signs a fresh access/refresh pair for the subject and persists
// the refresh token into the user's slot, superseding any previous one.
func (s *Service) IssuePair(ctx context.Context, userID, email string) (Pair, error) {
	access, err := s.sign(userID, email, KindAccess, s.config.AccessTTL)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := s.sign(userID, email, KindRefresh, s.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	if err := s.store.Set(ctx, refreshSlotPrefix+userID, refresh, s.config.RefreshTTL); err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.config.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccess checks signature, expiry, and kind. It deliberately does not
// consult the revocation set; that belongs to the auth gate so this stays a
// pure CPU-bound check.
func (s *Service) VerifyAccess(tokenStr string) (*Claims, error) {
	claims, err := s.parse(tokenStr)
	if err != nil || claims.Kind != KindAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh rotates a valid refresh token into a new pair. The presented
// token must verify and match the stored slot value exactly; rotation is
// serialized per user with a short lock so two concurrent refreshes cannot
// both validate against the old slot value.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil || claims.Kind != KindRefresh {
		return Pair{}, ErrRefreshInvalid
	}

	if s.locker == nil {
		return s.rotate(ctx, claims, refreshToken)
	}

	var pair Pair
	err = s.locker.WithLock(ctx, rotateLockPrefix+claims.UserID, rotateLockTTL, rotateLockRetries,
		func(ctx context.Context) error {
			var rotateErr error
			pair, rotateErr = s.rotate(ctx, claims, refreshToken)
			return rotateErr
		})
	if err != nil {
		return Pair{}, err
	}
	return pair, nil
}

func (s *Service) rotate(ctx context.Context, claims *Claims, presented string) (Pair, error) {
	stored, found, err := s.store.Get(ctx, refreshSlotPrefix+claims.UserID)
	if err != nil {
		return Pair{}, err
	}
	if !found || stored != presented {
		return Pair{}, ErrRefreshInvalid
	}
	return s.IssuePair(ctx, claims.UserID, claims.Email)
}

// RevokeRefresh deletes the user's refresh slot. Returns whether a token
// was actually removed.
func (s *Service) RevokeRefresh(ctx context.Context, userID string) (bool, error) {
	n, err := s.store.Del(ctx, refreshSlotPrefix+userID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Blacklist marks an access token revoked for the remainder of its natural
// lifetime. Invalid or already-expired tokens are a no-op; there is nothing
// left to revoke and the uniform silence avoids an oracle.
func (s *Service) Blacklist(ctx context.Context, tokenStr string) error {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}

	return s.store.Set(ctx, blacklistPrefix+internal.HashToken(tokenStr), "1", ttl)
}

// IsBlacklisted reports whether the token sits in the revocation set. The
// entry self-expires when the token would have expired anyway.
func (s *Service) IsBlacklisted(ctx context.Context, tokenStr string) (bool, error) {
	return s.store.Exists(ctx, blacklistPrefix+internal.HashToken(tokenStr))
}

func (s *Service) sign(userID, email string, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{},
		func(*jwt.Token) (interface{}, error) { return s.config.Secret, nil })
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
