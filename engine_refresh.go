package dreamerauth

import (
	"context"
	"errors"

	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/kv"
)

// Refresh trades a valid refresh token for a new pair. The old refresh
// token is blacklisted before the new one is minted, so each refresh
// token spends exactly once.
//
// A structurally valid refresh token that was already spent by a past
// rotation is treated as replay: the old pair leaked. Every session and
// token of the principal is revoked and ErrRefreshReuse is returned.
// Concurrent refreshes of the same token inside the replay grace lose
// with a plain ErrTokenRevoked instead.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrRevoked) && claims != nil && claims.TokenType == jwt.TypeRefresh {
			return nil, e.classifyRevokedRefresh(ctx, claims)
		}
		return nil, err
	}
	if claims.TokenType != jwt.TypeRefresh {
		return nil, ErrTokenInvalid
	}
	principalID := claims.Subject

	if err := e.checkRate(ctx, "refresh", principalID, e.tierOf(ctx, principalID)); err != nil {
		return nil, err
	}

	sessionID, err := e.tokens.LookupRefreshRecord(ctx, principalID, claims.ID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			// A spent jti is on the blacklist; a concurrent rotation
			// that won the race is not a replay.
			if spent, serr := e.tokens.IsRevoked(ctx, claims.ID); serr == nil && spent {
				return nil, ErrTokenRevoked
			}
			return nil, e.handleRefreshReuse(ctx, principalID, claims)
		}
		return nil, err
	}

	ok, err := e.sessions.Validate(ctx, principalID, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		_ = e.tokens.DeleteRefreshRecord(ctx, principalID, claims.ID)
		return nil, ErrSessionInvalid
	}

	// Spend the old token before minting the new pair. The blacklist
	// write is the serialization point: of N concurrent refreshes with
	// the same token, exactly one proceeds past here.
	spent, err := e.tokens.SpendClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !spent {
		return nil, ErrTokenRevoked
	}
	if err := e.tokens.DeleteRefreshRecord(ctx, principalID, claims.ID); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	pair, err := e.tokens.Issue(user.ID, user.Role, claims.DeviceID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.tokens.SaveRefreshRecord(ctx, user.ID, pair.RefreshJTI, sessionID, pair.RefreshExpiresAt); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditRefreshSuccess, true, user.ID, sessionID, nil, nil)

	return &LoginResult{
		Principal: Principal{
			ID:        user.ID,
			Role:      user.Role,
			DeviceID:  claims.DeviceID,
			SessionID: sessionID,
		},
		SessionID: sessionID,
		Tokens:    pair,
	}, nil
}

// classifyRevokedRefresh separates the ways a blacklisted refresh token
// comes back: a concurrent rotation that lost the spend race inside the
// grace, a plain revocation from logout or containment, and replay of a
// token rotated long ago. Only the last one is treated as compromise.
func (e *Engine) classifyRevokedRefresh(ctx context.Context, claims *jwt.Claims) error {
	replay, err := e.tokens.ReplayOfRotated(ctx, claims.ID)
	if err != nil {
		return err
	}
	if !replay {
		return ErrTokenRevoked
	}
	return e.handleRefreshReuse(ctx, claims.Subject, claims)
}

// handleRefreshReuse revokes everything the principal holds. A rotated
// refresh token coming back means the pair was captured; containment
// beats convenience here.
func (e *Engine) handleRefreshReuse(ctx context.Context, principalID string, claims *jwt.Claims) error {
	e.log.Warn().
		Str("principal_id", principalID).
		Str("jti", claims.ID).
		Msg("refresh token reuse detected, revoking all sessions")

	if err := e.sessions.RevokeAll(ctx, principalID); err != nil {
		e.log.Error().Err(err).Str("principal_id", principalID).Msg("session revocation after reuse failed")
	}
	if err := e.tokens.RevokeClaims(ctx, claims); err != nil {
		e.log.Error().Err(err).Str("principal_id", principalID).Msg("token revocation after reuse failed")
	}

	e.emitAudit(ctx, auditRefreshReuse, false, principalID, "", ErrRefreshReuse, map[string]string{"jti": claims.ID})
	return ErrRefreshReuse
}
