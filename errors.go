package dreamerauth

import (
	"errors"
	"net/http"

	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/kv"
)

var (
	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials is returned for a bad identifier or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a principal id resolves to nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountLocked is returned while the login guard holds a lock.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is returned when a rate limit policy denies a request.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakCredential is returned when a new password fails the policy.
	ErrWeakCredential = errors.New("credential does not meet policy")
	// ErrMFARequired is returned by Login when a second factor is pending.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalid is returned for a wrong TOTP or backup code.
	ErrMFAInvalid = errors.New("invalid mfa code")
	// ErrMFANotEnrolled is returned when MFA operations target a
	// principal without an enrolled second factor.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrSessionInvalid is returned when a session is missing, expired,
	// or belongs to someone else.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrRefreshReuse is returned when an already-rotated refresh token
	// comes back; every session of the principal is revoked in response.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrPermissionDenied is returned when a role lacks a permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// Token and store errors surface from subpackages unchanged; aliases keep
// callers on a single import.
var (
	ErrTokenExpired     = jwt.ErrExpired
	ErrTokenInvalid     = jwt.ErrInvalid
	ErrTokenRevoked     = jwt.ErrRevoked
	ErrStoreUnavailable = kv.ErrUnavailable
)

// CodeOf maps an engine error to a stable machine code and HTTP status.
// Unrecognized errors map to internal_error / 500.
func CodeOf(err error) (string, int) {
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return "invalid_credentials", http.StatusUnauthorized
	case errors.Is(err, ErrTokenExpired):
		return "token_expired", http.StatusUnauthorized
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked", http.StatusUnauthorized
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid", http.StatusUnauthorized
	case errors.Is(err, ErrRefreshReuse):
		return "refresh_reuse", http.StatusUnauthorized
	case errors.Is(err, ErrSessionInvalid):
		return "session_invalid", http.StatusUnauthorized
	case errors.Is(err, ErrMFARequired):
		return "mfa_required", http.StatusUnauthorized
	case errors.Is(err, ErrMFAInvalid):
		return "mfa_invalid", http.StatusUnauthorized
	case errors.Is(err, ErrMFANotEnrolled):
		return "mfa_not_enrolled", http.StatusConflict
	case errors.Is(err, ErrAccountLocked):
		return "account_locked", http.StatusForbidden
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied", http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	case errors.Is(err, ErrWeakCredential):
		return "weak_credential", http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable", http.StatusServiceUnavailable
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready", http.StatusServiceUnavailable
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
