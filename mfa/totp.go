// Package mfa implements the multi-factor coordinator: TOTP secrets and
// verification, single-use backup codes, and the short-lived login
// challenges that bridge a password check and a second factor.
package mfa

import (
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/cuzo151/dreamer-auth/kv"
)

// Config tunes the coordinator. Zero fields fall back to defaults.
type Config struct {
	// Issuer is the label shown in authenticator apps.
	Issuer string
	Period uint
	Digits otp.Digits
	// Skew is the accepted drift in time steps on either side of now.
	Skew uint

	BackupCodeCount int

	ChallengeTTL         time.Duration
	MaxChallengeAttempts int
}

const (
	defaultPeriod          = 30
	defaultSkew            = 2
	defaultBackupCodeCount = 10
	defaultChallengeTTL    = 5 * time.Minute
	defaultMaxAttempts     = 5
)

func (c Config) withDefaults() Config {
	if c.Period == 0 {
		c.Period = defaultPeriod
	}
	if c.Digits == 0 {
		c.Digits = otp.DigitsSix
	}
	if c.Skew == 0 {
		c.Skew = defaultSkew
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = defaultBackupCodeCount
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = defaultChallengeTTL
	}
	if c.MaxChallengeAttempts <= 0 {
		c.MaxChallengeAttempts = defaultMaxAttempts
	}
	return c
}

// Coordinator generates and verifies second factors. It is stateless apart
// from the challenge records it keeps in the store.
type Coordinator struct {
	config Config
	store  challengeStore
}

// New creates a Coordinator. store backs the login challenges; pass the
// same store the rest of the engine uses.
func New(cfg Config, store kv.Store) (*Coordinator, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("mfa issuer required")
	}
	return &Coordinator{
		config: cfg.withDefaults(),
		store:  challengeStore{store: store},
	}, nil
}

// GenerateSecret creates a fresh TOTP secret for the principal and the
// otpauth:// provisioning URI an authenticator app enrolls from.
func (c *Coordinator) GenerateSecret(principalID string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      c.config.Issuer,
		AccountName: principalID,
		Period:      c.config.Period,
		Digits:      c.config.Digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTOTP reports whether code is valid for secret at the current time,
// accepting the configured step drift.
func (c *Coordinator) VerifyTOTP(code, secret string) bool {
	return c.verifyTOTPAt(code, secret, time.Now().UTC())
}

func (c *Coordinator) verifyTOTPAt(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    c.config.Period,
		Skew:      c.config.Skew,
		Digits:    c.config.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
