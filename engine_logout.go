package dreamerauth

import (
	"context"

	"github.com/cuzo151/dreamer-auth/jwt"
)

// Logout revokes the access token and deletes its session. The refresh
// record tied to the session stays unusable because Refresh validates the
// session before honoring it.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Verify(ctx, accessToken)
	if err != nil {
		return err
	}
	if claims.TokenType != jwt.TypeAccess {
		return ErrTokenInvalid
	}

	if err := e.tokens.RevokeClaims(ctx, claims); err != nil {
		return err
	}
	if claims.SessionID != "" {
		if err := e.sessions.Delete(ctx, claims.Subject, claims.SessionID); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, auditLogout, true, claims.Subject, claims.SessionID, nil, nil)
	return nil
}

// LogoutSession deletes one named session of the principal, for
// "sign out that device" surfaces.
func (e *Engine) LogoutSession(ctx context.Context, principalID, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Delete(ctx, principalID, sessionID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditLogout, true, principalID, sessionID, nil, nil)
	return nil
}

// RevokeAllSessions wipes every session the principal holds. Outstanding
// access tokens in hybrid or strict mode die with their sessions; in
// JWT-only mode they live out their TTL.
func (e *Engine) RevokeAllSessions(ctx context.Context, principalID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.RevokeAll(ctx, principalID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditLogoutAll, true, principalID, "", nil, nil)
	return nil
}
