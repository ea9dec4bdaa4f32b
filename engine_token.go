package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hollis-dev/authcore/token"
)

// IssueTokenPair signs an access/refresh pair for the user and persists the
// refresh token into the user's single slot, superseding any previous one.
// Called by the login handler after credential verification.
func (e *Engine) IssueTokenPair(ctx context.Context, userID, email string) (token.Pair, error) {
	pair, err := e.tokens.IssuePair(ctx, userID, email)
	e.emit(ctx, EventTokenIssued, userID, "", err == nil, err)
	return pair, err
}

// VerifyAccessToken checks signature, expiry, and kind. It does not consult
// the revocation set; use [Engine.Authenticate] on request paths.
func (e *Engine) VerifyAccessToken(tokenStr string) (*token.Claims, error) {
	return e.tokens.VerifyAccess(tokenStr)
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// stored slot. A second exchange with the same token fails: rotation
// invalidated the slot's old value even though the old token's signature
// stays valid until natural expiry.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	pair, err := e.tokens.Refresh(ctx, refreshToken)
	userID := ""
	if err == nil {
		if claims, verr := e.tokens.VerifyAccess(pair.AccessToken); verr == nil {
			userID = claims.UserID
		}
	}
	e.emit(ctx, EventTokenRefreshed, userID, "", err == nil, err)
	return pair, err
}

// RevokeRefreshToken deletes the user's refresh slot. Returns whether a
// token was actually removed.
func (e *Engine) RevokeRefreshToken(ctx context.Context, userID string) (bool, error) {
	revoked, err := e.tokens.RevokeRefresh(ctx, userID)
	e.emit(ctx, EventTokenRevoked, userID, "", err == nil, err)
	return revoked, err
}

// BlacklistAccessToken revokes an access token for the remainder of its
// lifetime. Expired or invalid tokens are a silent no-op.
func (e *Engine) BlacklistAccessToken(ctx context.Context, tokenStr string) error {
	return e.tokens.Blacklist(ctx, tokenStr)
}

// IsBlacklisted reports whether the access token has been revoked.
func (e *Engine) IsBlacklisted(ctx context.Context, tokenStr string) (bool, error) {
	return e.tokens.IsBlacklisted(ctx, tokenStr)
}

// Authenticate is the gate check: blacklist consultation, then signature,
// expiry, and kind verification. Every failure collapses to
// [ErrUnauthorized]. When the revocation store is unreachable the check
// fails closed unless [GateConfig.FailOpenRevocation] is set.
func (e *Engine) Authenticate(ctx context.Context, tokenStr string) (*Identity, error) {
	blacklisted, err := e.tokens.IsBlacklisted(ctx, tokenStr)
	if err != nil {
		if !e.config.Gate.FailOpenRevocation {
			e.emit(ctx, EventAuthRejected, "", "", false, err)
			return nil, ErrUnauthorized
		}
		e.store.Logger().Warn("revocation check failing open", "error", err)
	} else if blacklisted {
		e.emit(ctx, EventAuthRejected, "", "", false, errors.New("token blacklisted"))
		return nil, ErrUnauthorized
	}

	claims, err := e.tokens.VerifyAccess(tokenStr)
	if err != nil {
		e.emit(ctx, EventAuthRejected, "", "", false, err)
		return nil, ErrUnauthorized
	}

	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Logout revokes the presented access token, deletes the refresh slot, and
// destroys sessions per scope. Partial failures are joined and reported;
// a logout is only "successful" when every step succeeded.
func (e *Engine) Logout(ctx context.Context, accessToken, sessionID string, scope LogoutScope) error {
	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return ErrUnauthorized
	}

	var errs []error
	if err := e.tokens.Blacklist(ctx, accessToken); err != nil {
		errs = append(errs, fmt.Errorf("blacklist access token: %w", err))
	}
	if _, err := e.tokens.RevokeRefresh(ctx, claims.UserID); err != nil {
		errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
	}

	switch scope {
	case LogoutAll:
		if _, err := e.sessions.DeleteAll(ctx, claims.UserID); err != nil {
			errs = append(errs, fmt.Errorf("delete sessions: %w", err))
		}
	default:
		if sessionID != "" {
			if _, err := e.sessions.Delete(ctx, sessionID); err != nil {
				errs = append(errs, fmt.Errorf("delete session: %w", err))
			}
		}
	}

	joined := errors.Join(errs...)
	e.emit(ctx, EventLogout, claims.UserID, sessionID, joined == nil, joined)
	return joined
}
