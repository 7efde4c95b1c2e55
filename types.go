package dreamerauth

import (
	"context"

	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/mfa"
	"github.com/cuzo151/dreamer-auth/password"
	"github.com/cuzo151/dreamer-auth/session"
)

// TokenPair is re-exported so callers need not import the jwt subpackage.
type TokenPair = jwt.TokenPair

// Assessment is the password strength verdict returned by AssessPassword.
type Assessment = password.Assessment

// Session is re-exported for session listing APIs.
type Session = session.Session

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID        string
	Role      string
	DeviceID  string
	SessionID string
}

// DeviceInfo identifies the device behind a login attempt.
type DeviceInfo struct {
	Fingerprint string
	IP          string
}

// UserRecord is the account record the host application stores. The engine
// never persists users itself; it reads and writes them through
// UserProvider.
type UserRecord struct {
	ID           string
	Identifier   string
	PasswordHash string
	Role         string
	Tier         string

	MFAEnabled  bool
	TOTPSecret  string
	BackupCodes []mfa.BackupCode
}

// UserProvider is the integration point to the host's user database.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	SetTOTPSecret(ctx context.Context, id, secret string, enabled bool) error
	ReplaceBackupCodes(ctx context.Context, id string, codes []mfa.BackupCode) error
}

// LoginResult is returned by Login. When MFARequired is set, tokens are
// absent and the challenge must be completed via CompleteMFALogin.
type LoginResult struct {
	MFARequired bool
	ChallengeID string

	Principal Principal
	SessionID string
	Tokens    TokenPair
}

// MFAEnrollment holds the provisioning material for TOTP enrollment. The
// plaintext backup codes appear here exactly once.
type MFAEnrollment struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}
