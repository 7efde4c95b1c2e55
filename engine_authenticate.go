package dreamerauth

import (
	"context"
	"time"

	"github.com/cuzo151/dreamer-auth/jwt"
)

// Authenticate verifies an access token and returns the principal. What
// gets checked depends on the validation mode:
//
//   - ModeJWTOnly: signature, claims, and the revocation blacklist.
//   - ModeHybrid: additionally validates the session when the token
//     carries one, sliding its expiry.
//   - ModeStrict: a live session is mandatory.
//
// Session and blacklist lookups fail closed: a store outage surfaces as
// an error, never as a silently accepted token.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	if e == nil || e.tokens == nil {
		return Principal{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	claims, err := e.tokens.Verify(ctx, accessToken)
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != jwt.TypeAccess {
		return Principal{}, ErrTokenInvalid
	}

	principal := Principal{
		ID:        claims.Subject,
		Role:      claims.Role,
		DeviceID:  claims.DeviceID,
		SessionID: claims.SessionID,
	}

	switch e.config.ValidationMode {
	case ModeJWTOnly:
		return principal, nil
	case ModeStrict:
		if claims.SessionID == "" {
			return Principal{}, ErrSessionInvalid
		}
	case ModeHybrid:
		if claims.SessionID == "" {
			return principal, nil
		}
	}

	ok, err := e.sessions.Validate(ctx, claims.Subject, claims.SessionID)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, ErrSessionInvalid
	}
	return principal, nil
}
