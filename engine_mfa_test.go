package dreamerauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

// enrollAndActivate runs the full enrollment handshake for the seeded user.
func enrollAndActivate(t *testing.T, f *testFixture, principalID string) *MFAEnrollment {
	t.Helper()
	ctx := context.Background()

	enrollment, err := f.engine.EnrollTOTP(ctx, principalID)
	if err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if enrollment.Secret == "" || enrollment.OTPAuthURL == "" {
		t.Fatalf("incomplete enrollment: %+v", enrollment)
	}
	if len(enrollment.BackupCodes) == 0 {
		t.Fatal("expected backup codes")
	}

	// Enrollment alone must not arm MFA.
	user, err := f.provider.GetUserByID(ctx, principalID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.MFAEnabled {
		t.Fatal("MFA armed before activation")
	}

	if err := f.engine.ActivateTOTP(ctx, principalID, currentCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("ActivateTOTP: %v", err)
	}
	return enrollment
}

func TestMFALoginWithTOTP(t *testing.T) {
	f := newTestEngine(t, nil)
	f.seedUser(t, "usr-1", "ada@example.com")
	enrollment := enrollAndActivate(t, f, "usr-1")
	ctx := context.Background()

	result, err := f.engine.Login(ctx, "ada@example.com", testPassword)
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}
	if !result.MFARequired || result.ChallengeID == "" {
		t.Fatalf("expected pending challenge, got %+v", result)
	}
	if result.Tokens.Access != "" {
		t.Fatal("no tokens before the second factor")
	}

	completed, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, currentCode(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("CompleteMFALogin: %v", err)
	}
	if completed.Tokens.Access == "" {
		t.Fatal("expected tokens after MFA")
	}
	if _, err := f.engine.Authenticate(ctx, completed.Tokens.Access); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// The challenge is single-use.
	if _, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, currentCode(t, enrollment.Secret)); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("consumed challenge err = %v, want ErrMFAInvalid", err)
	}
}

func TestMFALoginWithBackupCode(t *testing.T) {
	f := newTestEngine(t, nil)
	f.seedUser(t, "usr-1", "ada@example.com")
	enrollment := enrollAndActivate(t, f, "usr-1")
	ctx := context.Background()

	backup := enrollment.BackupCodes[0]

	result, err := f.engine.Login(ctx, "ada@example.com", testPassword)
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}
	completed, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, backup)
	if err != nil {
		t.Fatalf("CompleteMFALogin with backup code: %v", err)
	}
	if completed.Tokens.Access == "" {
		t.Fatal("expected tokens")
	}

	// The same code must not work twice.
	result, err = f.engine.Login(ctx, "ada@example.com", testPassword)
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}
	if _, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, backup); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("replayed backup code err = %v, want ErrMFAInvalid", err)
	}
}

func TestMFAWrongCodeBurnsAttempts(t *testing.T) {
	f := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.MaxChallengeAttempts = 2
	})
	f.seedUser(t, "usr-1", "ada@example.com")
	enrollment := enrollAndActivate(t, f, "usr-1")
	ctx := context.Background()

	result, err := f.engine.Login(ctx, "ada@example.com", testPassword)
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, "000000"); !errors.Is(err, ErrMFAInvalid) {
			t.Fatalf("attempt %d err = %v, want ErrMFAInvalid", i, err)
		}
	}

	// Budget exhausted: the challenge is dead even for the right code.
	if _, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, currentCode(t, enrollment.Secret)); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("dead challenge err = %v, want ErrMFAInvalid", err)
	}
}

func TestActivateTOTPRejectsWrongCode(t *testing.T) {
	f := newTestEngine(t, nil)
	f.seedUser(t, "usr-1", "ada@example.com")
	ctx := context.Background()

	if _, err := f.engine.EnrollTOTP(ctx, "usr-1"); err != nil {
		t.Fatalf("EnrollTOTP: %v", err)
	}
	if err := f.engine.ActivateTOTP(ctx, "usr-1", "000000"); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("err = %v, want ErrMFAInvalid", err)
	}

	user, err := f.provider.GetUserByID(ctx, "usr-1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.MFAEnabled {
		t.Fatal("failed activation must not arm MFA")
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	f := newTestEngine(t, nil)
	f.seedUser(t, "usr-1", "ada@example.com")
	enrollment := enrollAndActivate(t, f, "usr-1")
	ctx := context.Background()

	fresh, err := f.engine.RegenerateBackupCodes(ctx, "usr-1", currentCode(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(fresh) == 0 {
		t.Fatal("expected new codes")
	}

	// An old code no longer authenticates.
	result, err := f.engine.Login(ctx, "ada@example.com", testPassword)
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("err = %v, want ErrMFARequired", err)
	}
	if _, err := f.engine.CompleteMFALogin(ctx, result.ChallengeID, enrollment.BackupCodes[0]); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("old backup code err = %v, want ErrMFAInvalid", err)
	}

	if _, err := f.engine.RegenerateBackupCodes(ctx, "usr-1", "000000"); !errors.Is(err, ErrMFAInvalid) {
		t.Fatalf("wrong code err = %v, want ErrMFAInvalid", err)
	}
}

func TestDisableTOTP(t *testing.T) {
	f := newTestEngine(t, nil)
	f.seedUser(t, "usr-1", "ada@example.com")
	enrollment := enrollAndActivate(t, f, "usr-1")
	ctx := context.Background()

	if err := f.engine.DisableTOTP(ctx, "usr-1", currentCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("DisableTOTP: %v", err)
	}

	// Logins go back to password-only.
	result, err := f.engine.Login(ctx, "ada@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login after disable: %v", err)
	}
	if result.MFARequired {
		t.Fatal("MFA should be off")
	}
}
