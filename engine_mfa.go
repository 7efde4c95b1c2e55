package dreamerauth

import (
	"context"
	"errors"

	"github.com/cuzo151/dreamer-auth/mfa"
)

// EnrollTOTP provisions a TOTP secret and backup codes for the principal.
// The secret is stored unverified; ActivateTOTP must confirm a live code
// before logins start demanding a second factor. The plaintext backup
// codes appear in the return value exactly once.
func (e *Engine) EnrollTOTP(ctx context.Context, principalID string) (*MFAEnrollment, error) {
	if e == nil || e.mfa == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	secret, uri, err := e.mfa.GenerateSecret(user.Identifier)
	if err != nil {
		return nil, err
	}
	plaintexts, records, err := e.mfa.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := e.users.SetTOTPSecret(ctx, user.ID, secret, false); err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, user.ID, records); err != nil {
		return nil, err
	}

	return &MFAEnrollment{
		Secret:      secret,
		OTPAuthURL:  uri,
		BackupCodes: plaintexts,
	}, nil
}

// ActivateTOTP confirms enrollment with a live code and turns MFA on.
func (e *Engine) ActivateTOTP(ctx context.Context, principalID, code string) error {
	if e == nil || e.mfa == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return ErrUserNotFound
	}
	if user.TOTPSecret == "" {
		return ErrMFANotEnrolled
	}
	if !e.mfa.VerifyTOTP(code, user.TOTPSecret) {
		e.emitAudit(ctx, auditMFAFailure, false, user.ID, "", ErrMFAInvalid, map[string]string{"phase": "activation"})
		return ErrMFAInvalid
	}
	if err := e.users.SetTOTPSecret(ctx, user.ID, user.TOTPSecret, true); err != nil {
		return err
	}

	e.emitAudit(ctx, auditMFAEnrolled, true, user.ID, "", nil, nil)
	return nil
}

// DisableTOTP turns MFA off after proving possession of the current
// factor.
func (e *Engine) DisableTOTP(ctx context.Context, principalID, code string) error {
	if e == nil || e.mfa == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return ErrUserNotFound
	}
	if !user.MFAEnabled {
		return ErrMFANotEnrolled
	}
	if !e.verifySecondFactor(ctx, &user, code) {
		return ErrMFAInvalid
	}

	if err := e.users.SetTOTPSecret(ctx, user.ID, "", false); err != nil {
		return err
	}
	return e.users.ReplaceBackupCodes(ctx, user.ID, nil)
}

// RegenerateBackupCodes replaces the remaining backup codes after a live
// TOTP check. Old codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, principalID, totpCode string) ([]string, error) {
	if e == nil || e.mfa == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if !user.MFAEnabled || user.TOTPSecret == "" {
		return nil, ErrMFANotEnrolled
	}
	if !e.mfa.VerifyTOTP(totpCode, user.TOTPSecret) {
		return nil, ErrMFAInvalid
	}

	plaintexts, records, err := e.mfa.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := e.users.ReplaceBackupCodes(ctx, user.ID, records); err != nil {
		return nil, err
	}
	return plaintexts, nil
}

// CompleteMFALogin finishes a pending challenge with a TOTP or backup
// code and issues the token pair. Wrong codes burn challenge attempts;
// at the budget the challenge dies and the login restarts from scratch.
func (e *Engine) CompleteMFALogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil || e.mfa == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.mfa.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, mfa.ErrChallengeNotFound) {
			return nil, ErrMFAInvalid
		}
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, challenge.PrincipalID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if !e.verifySecondFactor(ctx, &user, code) {
		err := e.mfa.FailChallenge(ctx, challengeID)
		if err != nil && !errors.Is(err, mfa.ErrChallengeAttempts) && !errors.Is(err, mfa.ErrChallengeNotFound) {
			return nil, err
		}
		e.emitAudit(ctx, auditMFAFailure, false, user.ID, "", ErrMFAInvalid, nil)
		return nil, ErrMFAInvalid
	}

	if err := e.mfa.ConsumeChallenge(ctx, challengeID); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditMFASuccess, true, user.ID, "", nil, nil)

	device := DeviceInfo{Fingerprint: challenge.DeviceFingerprint, IP: challenge.RemoteIP}
	return e.finishLogin(ctx, user, device)
}

// verifySecondFactor accepts a live TOTP code or an unused backup code.
// A matched backup code is consumed before the check reports success, so
// it can never authenticate twice.
func (e *Engine) verifySecondFactor(ctx context.Context, user *UserRecord, code string) bool {
	if user.TOTPSecret != "" && e.mfa.VerifyTOTP(code, user.TOTPSecret) {
		return true
	}

	idx := e.mfa.MatchBackupCode(code, user.BackupCodes)
	if idx < 0 {
		return false
	}
	remaining := make([]mfa.BackupCode, 0, len(user.BackupCodes)-1)
	remaining = append(remaining, user.BackupCodes[:idx]...)
	remaining = append(remaining, user.BackupCodes[idx+1:]...)
	if err := e.users.ReplaceBackupCodes(ctx, user.ID, remaining); err != nil {
		e.log.Error().Err(err).Str("principal_id", user.ID).Msg("backup code consumption failed")
		return false
	}
	user.BackupCodes = remaining
	return true
}
