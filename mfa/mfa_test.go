package mfa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/cuzo151/dreamer-auth/kv"
)

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)

	c, err := New(Config{Issuer: "dreamer"}, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom failed: %v", err)
	}
	return code
}

func TestGenerateSecretProducesProvisioningURI(t *testing.T) {
	c := testCoordinator(t)

	secret, uri, err := c.GenerateSecret("u1")
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if secret == "" {
		t.Fatal("expected non-empty secret")
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("uri = %q, want otpauth://totp/ prefix", uri)
	}
	if !strings.Contains(uri, "issuer=dreamer") {
		t.Fatalf("uri = %q, missing issuer", uri)
	}
}

func TestVerifyTOTP_DriftWindow(t *testing.T) {
	c := testCoordinator(t)
	secret, _, err := c.GenerateSecret("u1")
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Now().UTC()

	// Codes up to two steps away are accepted; three steps is too far.
	for _, offset := range []time.Duration{0, -60 * time.Second, 60 * time.Second} {
		code := codeAt(t, secret, now.Add(offset))
		if !c.verifyTOTPAt(code, secret, now) {
			t.Fatalf("code at offset %v rejected", offset)
		}
	}

	stale := codeAt(t, secret, now.Add(-3*30*time.Second))
	if c.verifyTOTPAt(stale, secret, now) {
		t.Fatal("code three steps old must be rejected")
	}
}

func TestVerifyTOTP_RejectsGarbage(t *testing.T) {
	c := testCoordinator(t)
	secret, _, err := c.GenerateSecret("u1")
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	if c.VerifyTOTP("000000", secret) && c.VerifyTOTP("999999", secret) {
		t.Fatal("two fixed codes cannot both be valid")
	}
	if c.VerifyTOTP("not-a-code", secret) {
		t.Fatal("non-numeric code must be rejected")
	}
}

func TestBackupCodes_MatchAndFormat(t *testing.T) {
	c := testCoordinator(t)

	codes, records, err := c.GenerateBackupCodes()
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if len(codes) != 10 || len(records) != 10 {
		t.Fatalf("got %d codes / %d records, want 10", len(codes), len(records))
	}

	for i, code := range codes {
		if !strings.Contains(code, "-") {
			t.Fatalf("code %q missing separator", code)
		}
		if got := c.MatchBackupCode(code, records); got != i {
			t.Fatalf("MatchBackupCode(%q) = %d, want %d", code, got, i)
		}
	}

	if got := c.MatchBackupCode("AAAA-AAAA", records); got != -1 {
		t.Fatalf("MatchBackupCode on unknown code = %d, want -1", got)
	}

	// Matching is case and whitespace tolerant.
	if got := c.MatchBackupCode(" "+strings.ToLower(codes[3])+" ", records); got != 3 {
		t.Fatalf("normalized match = %d, want 3", got)
	}
}

func TestChallengeLifecycle(t *testing.T) {
	c := testCoordinator(t)
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "u1", "device-a", "203.0.113.9")
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	ch, err := c.GetChallenge(ctx, id)
	if err != nil {
		t.Fatalf("GetChallenge failed: %v", err)
	}
	if ch.PrincipalID != "u1" || ch.DeviceFingerprint != "device-a" {
		t.Fatalf("challenge = %+v", ch)
	}

	if err := c.ConsumeChallenge(ctx, id); err != nil {
		t.Fatalf("ConsumeChallenge failed: %v", err)
	}
	if _, err := c.GetChallenge(ctx, id); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after consume, got %v", err)
	}
}

func TestChallengeAttemptBudget(t *testing.T) {
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	c, err := New(Config{Issuer: "dreamer", MaxChallengeAttempts: 3}, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "u1", "device-a", "")
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	if err := c.FailChallenge(ctx, id); err != nil {
		t.Fatalf("first failure: %v", err)
	}
	if err := c.FailChallenge(ctx, id); err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if err := c.FailChallenge(ctx, id); !errors.Is(err, ErrChallengeAttempts) {
		t.Fatalf("third failure = %v, want ErrChallengeAttempts", err)
	}

	// Budget exhaustion deletes the challenge outright.
	if _, err := c.GetChallenge(ctx, id); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeConcurrentFailuresCountEveryAttempt(t *testing.T) {
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	c, err := New(Config{Issuer: "dreamer", MaxChallengeAttempts: 8}, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	id, err := c.CreateChallenge(ctx, "u1", "device-a", "")
	if err != nil {
		t.Fatalf("CreateChallenge failed: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			err := c.FailChallenge(ctx, id)
			if err != nil && !errors.Is(err, ErrChallengeAttempts) && !errors.Is(err, ErrChallengeNotFound) {
				t.Errorf("FailChallenge: %v", err)
			}
		}()
	}
	wg.Wait()

	// Eight failures must exhaust a budget of eight even when they land
	// at once; lost increments would leave the challenge alive.
	if _, err := c.GetChallenge(ctx, id); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("challenge survived its budget: %v", err)
	}
}
