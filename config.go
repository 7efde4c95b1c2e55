package dreamerauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuzo151/dreamer-auth/jwt"
	"github.com/cuzo151/dreamer-auth/mfa"
	"github.com/cuzo151/dreamer-auth/password"
	"github.com/cuzo151/dreamer-auth/session"
)

// ValidationMode selects how much server-side state Authenticate consults.
type ValidationMode int

const (
	// ModeHybrid verifies the token and, when it carries a session id,
	// checks the session registry. The default.
	ModeHybrid ValidationMode = iota
	// ModeJWTOnly verifies the token signature and claims only. No
	// store round-trip beyond the revocation blacklist.
	ModeJWTOnly
	// ModeStrict additionally requires a live session record; tokens
	// without a session id are rejected.
	ModeStrict
)

// Rate limiting algorithm names.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmSlidingWindow = "sliding_window"
)

// RatePolicy is the limit for one named resource.
type RatePolicy struct {
	Algorithm      string
	Capacity       int64
	RefillAmount   int64
	RefillInterval time.Duration
	Window         time.Duration
	// FailClosed denies on store outage. Default is fail-open with a
	// logged warning; auth-critical resources should set this.
	FailClosed bool
}

// RateLimitConfig holds the per-resource policies and tier scaling.
type RateLimitConfig struct {
	Policies map[string]RatePolicy
	// TierMultipliers scales policy capacity per subject tier, e.g.
	// anonymous 0.5, premium 2.
	TierMultipliers map[string]float64
}

// LockoutConfig tunes the failed-login guard.
type LockoutConfig struct {
	Threshold     int
	CounterWindow time.Duration
	LockDuration  time.Duration
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking callers when the
	// buffer is full. Dropped counts are observable on the engine.
	DropIfFull bool
}

// MetricsConfig toggles the engine counters. Latency histograms cost one
// extra atomic add per Authenticate call.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full engine configuration.
type Config struct {
	ValidationMode ValidationMode

	JWT       jwt.Config
	Password  password.Config
	Policy    password.Policy
	Session   session.Config
	Lockout   LockoutConfig
	MFA       mfa.Config
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// DefaultConfig returns a configuration suitable for development. The JWT
// secret is generated per process; production deployments sharing tokens
// across instances must set JWT.InitialSecret.
func DefaultConfig() Config {
	return Config{
		ValidationMode: ModeHybrid,
		JWT: jwt.Config{
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       7 * 24 * time.Hour,
			RotationInterval: 24 * time.Hour,
			Issuer:           "dreamer-auth",
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: password.Policy{
			MinLength:  10,
			MaxLength:  128,
			MinClasses: 3,
		},
		Session: session.Config{
			TTL:             30 * time.Minute,
			MaxPerPrincipal: 5,
		},
		Lockout: LockoutConfig{
			Threshold:     5,
			CounterWindow: 15 * time.Minute,
			LockDuration:  15 * time.Minute,
		},
		MFA: mfa.Config{
			Issuer: "dreamer-auth",
		},
		RateLimit: RateLimitConfig{
			Policies: map[string]RatePolicy{
				"login": {
					Algorithm: AlgorithmSlidingWindow,
					Capacity:  10,
					Window:    time.Minute,
					// Best effort: the lockout guard on the same path
					// already fails closed on store outage.
				},
				"refresh": {
					Algorithm:      AlgorithmTokenBucket,
					Capacity:       30,
					RefillAmount:   1,
					RefillInterval: 2 * time.Second,
				},
			},
			TierMultipliers: map[string]float64{
				"anonymous":  0.5,
				"free":       1,
				"premium":    2,
				"enterprise": 4,
			},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate rejects configurations that cannot work. It is called by
// Builder.Build before any component is constructed.
func (c Config) Validate() error {
	if err := c.JWT.Validate(); err != nil {
		return err
	}
	switch c.ValidationMode {
	case ModeHybrid, ModeJWTOnly, ModeStrict:
	default:
		return errors.New("config: unknown validation mode")
	}
	for name, p := range c.RateLimit.Policies {
		switch p.Algorithm {
		case AlgorithmTokenBucket:
			if p.Capacity <= 0 || p.RefillAmount <= 0 || p.RefillInterval <= 0 {
				return fmt.Errorf("config: policy %q: token bucket needs positive capacity, refill amount, and interval", name)
			}
		case AlgorithmSlidingWindow:
			if p.Capacity <= 0 || p.Window <= 0 {
				return fmt.Errorf("config: policy %q: sliding window needs positive capacity and window", name)
			}
		default:
			return fmt.Errorf("config: policy %q: unknown algorithm %q", name, p.Algorithm)
		}
	}
	for tier, mult := range c.RateLimit.TierMultipliers {
		if mult <= 0 {
			return fmt.Errorf("config: tier %q: multiplier must be positive", tier)
		}
	}
	return nil
}
