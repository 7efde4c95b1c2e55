package dreamerauth

import "context"

// ChangePassword verifies the current password, enforces the strength
// policy on the replacement, rehashes, and revokes every session of the
// principal. Other devices must log in again with the new credential.
func (e *Engine) ChangePassword(ctx context.Context, principalID, oldSecret, newSecret string) error {
	if e == nil || e.vault == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if principalID == "" || oldSecret == "" || newSecret == "" {
		return ErrInvalidCredentials
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return ErrUserNotFound
	}

	ok, err := e.vault.Verify(oldSecret, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditPasswordChanged, false, user.ID, "", ErrInvalidCredentials, map[string]string{"reason": "old_password_mismatch"})
		return ErrInvalidCredentials
	}

	assessment := e.vault.AssessStrength(newSecret)
	if !assessment.Valid {
		return ErrWeakCredential
	}

	if same, err := e.vault.Verify(newSecret, user.PasswordHash); err == nil && same {
		return ErrWeakCredential
	}

	newHash, err := e.vault.Hash(newSecret)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return err
	}
	oldSecret = ""
	newSecret = ""

	if err := e.sessions.RevokeAll(ctx, user.ID); err != nil {
		e.log.Error().Err(err).Str("principal_id", user.ID).Msg("session revocation after password change failed")
		return err
	}
	// A clean credential change also clears any standing lockout.
	if err := e.guard.Unlock(ctx, user.Identifier); err != nil {
		e.log.Warn().Err(err).Str("principal_id", user.ID).Msg("lockout reset after password change failed")
	}

	e.emitAudit(ctx, auditPasswordChanged, true, user.ID, "", nil, nil)
	return nil
}

// AssessPassword runs the strength policy without touching any account,
// for signup forms that want live feedback.
func (e *Engine) AssessPassword(candidate string) (Assessment, error) {
	if e == nil || e.vault == nil {
		return Assessment{}, ErrEngineNotReady
	}
	return e.vault.AssessStrength(candidate), nil
}

// HashPassword hashes a credential for account creation paths that live
// outside the engine. The strength policy is enforced first.
func (e *Engine) HashPassword(candidate string) (string, error) {
	if e == nil || e.vault == nil {
		return "", ErrEngineNotReady
	}
	if assessment := e.vault.AssessStrength(candidate); !assessment.Valid {
		return "", ErrWeakCredential
	}
	return e.vault.Hash(candidate)
}
