package dreamerauth

import "context"

// Login verifies credentials and either issues tokens or opens an MFA
// challenge. When the principal has MFA enrolled, the result carries the
// challenge id and the returned error is ErrMFARequired; complete the
// flow with CompleteMFALogin.
//
// The flow is rate limit, lockout check, credential verify, attempt
// bookkeeping. Failures against unknown identifiers cost the same rate
// budget as failures against real accounts.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.vault == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	device := deviceFromContext(ctx)
	if device.IP == "" {
		device.IP = clientIPFromContext(ctx)
	}

	if err := e.checkRate(ctx, "login", identifier, ""); err != nil {
		e.emitAudit(ctx, auditLoginRateLimited, false, "", "", err, map[string]string{"identifier": identifier})
		return nil, err
	}

	locked, err := e.guard.IsLocked(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if locked {
		e.emitAudit(ctx, auditLoginLocked, false, "", "", ErrAccountLocked, map[string]string{"identifier": identifier})
		return nil, ErrAccountLocked
	}

	if secret == "" {
		return nil, e.failLogin(ctx, identifier, "", "empty_password")
	}

	user, err := e.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return nil, e.failLogin(ctx, identifier, "", "user_not_found")
	}

	ok, err := e.vault.Verify(secret, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, identifier, user.ID, "password_mismatch")
	}

	if _, err := e.guard.RecordAttempt(ctx, identifier, true); err != nil {
		return nil, err
	}

	if needsUpgrade, err := e.vault.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
		if upgraded, err := e.vault.Hash(secret); err == nil {
			// Best effort; a stale hash must not block the login.
			if err := e.users.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
				e.log.Warn().Err(err).Str("principal_id", user.ID).Msg("password hash upgrade failed")
			}
		}
	}
	secret = ""

	if user.MFAEnabled {
		challengeID, err := e.mfa.CreateChallenge(ctx, user.ID, device.Fingerprint, device.IP)
		if err != nil {
			return nil, err
		}
		e.emitAudit(ctx, auditMFAChallenge, true, user.ID, "", nil, nil)
		return &LoginResult{MFARequired: true, ChallengeID: challengeID}, ErrMFARequired
	}

	return e.finishLogin(ctx, user, device)
}

// failLogin charges a failed attempt to the lockout guard and returns the
// caller-facing error. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (e *Engine) failLogin(ctx context.Context, identifier, principalID, reason string) error {
	nowLocked, err := e.guard.RecordAttempt(ctx, identifier, false)
	if err != nil {
		return err
	}
	meta := map[string]string{"identifier": identifier, "reason": reason}
	if nowLocked {
		e.emitAudit(ctx, auditLoginLocked, false, principalID, "", ErrAccountLocked, meta)
		return ErrAccountLocked
	}
	e.emitAudit(ctx, auditLoginFailure, false, principalID, "", ErrInvalidCredentials, meta)
	return ErrInvalidCredentials
}

// finishLogin creates the session and issues the token pair. Shared by
// password-only logins and completed MFA challenges.
func (e *Engine) finishLogin(ctx context.Context, user UserRecord, device DeviceInfo) (*LoginResult, error) {
	sess, err := e.sessions.Create(ctx, user.ID, device.Fingerprint, device.IP)
	if err != nil {
		return nil, err
	}

	pair, err := e.tokens.Issue(user.ID, user.Role, device.Fingerprint, sess.ID)
	if err != nil {
		_ = e.sessions.Delete(ctx, user.ID, sess.ID)
		return nil, err
	}
	if err := e.tokens.SaveRefreshRecord(ctx, user.ID, pair.RefreshJTI, sess.ID, pair.RefreshExpiresAt); err != nil {
		_ = e.sessions.Delete(ctx, user.ID, sess.ID)
		return nil, err
	}

	e.emitAudit(ctx, auditLoginSuccess, true, user.ID, sess.ID, nil, nil)

	return &LoginResult{
		Principal: Principal{
			ID:        user.ID,
			Role:      user.Role,
			DeviceID:  device.Fingerprint,
			SessionID: sess.ID,
		},
		SessionID: sess.ID,
		Tokens:    pair,
	}, nil
}

// tierOf resolves the rate limiting tier for a principal, best effort.
func (e *Engine) tierOf(ctx context.Context, principalID string) string {
	if principalID == "" {
		return "anonymous"
	}
	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil || user.Tier == "" {
		return "free"
	}
	return user.Tier
}
