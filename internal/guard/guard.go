// Package guard tracks consecutive failed logins per principal and locks
// the account once a threshold is crossed. Counters and locks live in the
// shared store, so instances behind a load balancer see the same state.
package guard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cuzo151/dreamer-auth/kv"
)

const (
	counterKeyPrefix = "lgc"
	lockKeyPrefix    = "lgl"
)

// Config tunes the lockout policy. The failure counter's window and the
// lock duration are independent knobs: a lock placed at the end of the
// window still runs its full course.
type Config struct {
	Threshold     int
	CounterWindow time.Duration
	LockDuration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.CounterWindow <= 0 {
		c.CounterWindow = 15 * time.Minute
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
	return c
}

// LoginGuard implements threshold lockout over a kv store.
type LoginGuard struct {
	store  kv.Store
	config Config
}

// New creates a login guard.
func New(cfg Config, store kv.Store) *LoginGuard {
	return &LoginGuard{store: store, config: cfg.withDefaults()}
}

func counterKey(principalID string) string {
	return counterKeyPrefix + ":" + principalID
}

func lockKey(principalID string) string {
	return lockKeyPrefix + ":" + principalID
}

// RecordAttempt updates lockout state after a login attempt. A success
// clears the failure counter; a failure increments it and, at the
// threshold, places the lock. Returns whether the principal is now locked.
func (g *LoginGuard) RecordAttempt(ctx context.Context, principalID string, success bool) (bool, error) {
	if success {
		if err := g.store.Del(ctx, counterKey(principalID)); err != nil {
			return false, err
		}
		return false, nil
	}

	count, err := g.store.Incr(ctx, counterKey(principalID), g.config.CounterWindow)
	if err != nil {
		return false, err
	}
	if count < int64(g.config.Threshold) {
		return false, nil
	}
	if err := g.Lock(ctx, principalID); err != nil {
		return false, err
	}
	return true, nil
}

// IsLocked reports whether the principal is currently locked out. Store
// errors propagate so login paths fail closed.
func (g *LoginGuard) IsLocked(ctx context.Context, principalID string) (bool, error) {
	_, err := g.store.Get(ctx, lockKey(principalID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Lock locks the principal for the configured duration, independent of
// where the failure window stands.
func (g *LoginGuard) Lock(ctx context.Context, principalID string) error {
	return g.store.Set(ctx, lockKey(principalID), "1", g.config.LockDuration)
}

// Unlock clears the lock and the failure counter, for administrative
// resets.
func (g *LoginGuard) Unlock(ctx context.Context, principalID string) error {
	return g.store.Del(ctx, lockKey(principalID), counterKey(principalID))
}

// FailureCount returns the live failure count inside the current window.
func (g *LoginGuard) FailureCount(ctx context.Context, principalID string) (int64, error) {
	raw, err := g.store.Get(ctx, counterKey(principalID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("guard: corrupt failure counter")
	}
	return n, nil
}
