package jwt

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cuzo151/dreamer-auth/kv"
)

const (
	blacklistKeyPrefix = "jbl"
	refreshKeyPrefix   = "jrt"

	// spentValuePrefix marks blacklist entries written by a rotation
	// spend, followed by the spend time in unix milliseconds. Plain
	// revocations write "1".
	spentValuePrefix = "rot:"

	defaultReplayGrace = 10 * time.Second
)

func blacklistKey(jti string) string {
	return blacklistKeyPrefix + ":" + jti
}

func refreshKey(principalID, jti string) string {
	return refreshKeyPrefix + ":" + principalID + ":" + jti
}

// Revoke blacklists the token's jti for its remaining lifetime. A token
// already past expiry needs no blacklist entry; the entry self-prunes via
// the store TTL so the blacklist only ever holds live revocations.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	claims, err := m.parse(tokenStr)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return nil
		}
		return err
	}
	return m.RevokeClaims(ctx, claims)
}

// RevokeClaims blacklists already-verified claims.
func (m *Manager) RevokeClaims(ctx context.Context, claims *Claims) error {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	return m.store.Set(ctx, blacklistKey(claims.ID), "1", remaining)
}

// SpendClaims blacklists already-verified claims only if nobody else has.
// It is the atomic spend used by refresh rotation; false means another
// caller won the race. The entry records the spend time so a later
// replay can be told apart from a concurrent loser.
func (m *Manager) SpendClaims(ctx context.Context, claims *Claims) (bool, error) {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return false, nil
	}
	value := spentValuePrefix + strconv.FormatInt(time.Now().UnixMilli(), 10)
	return m.store.SetNX(ctx, blacklistKey(claims.ID), value, remaining)
}

// ReplayOfRotated reports whether jti was spent by a rotation longer ago
// than the replay grace. Inside the grace the presenter is a concurrent
// refresh that lost the spend race, not a replayer; entries written by
// plain revocation never count as replay.
func (m *Manager) ReplayOfRotated(ctx context.Context, jti string) (bool, error) {
	value, err := m.store.Get(ctx, blacklistKey(jti))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	ms, ok := strings.CutPrefix(value, spentValuePrefix)
	if !ok {
		return false, nil
	}
	spentAt, perr := strconv.ParseInt(ms, 10, 64)
	if perr != nil {
		return false, nil
	}
	return time.Since(time.UnixMilli(spentAt)) > m.config.ReplayGrace, nil
}

// IsRevoked reports whether the jti is on the blacklist.
func (m *Manager) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return m.isRevoked(ctx, jti)
}

func (m *Manager) isRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := m.store.Get(ctx, blacklistKey(jti))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	// Auth-critical path: a store outage must not open the system.
	return false, err
}

// SaveRefreshRecord persists the server-side half of a refresh token under
// (principal, jti). The value is the session the token is bound to.
func (m *Manager) SaveRefreshRecord(ctx context.Context, principalID, jti, sessionID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return ErrInvalid
	}
	return m.store.Set(ctx, refreshKey(principalID, jti), sessionID, ttl)
}

// LookupRefreshRecord returns the session bound to a refresh token, or
// kv.ErrNotFound when the record was already consumed or revoked, which
// is the refresh-reuse signal.
func (m *Manager) LookupRefreshRecord(ctx context.Context, principalID, jti string) (string, error) {
	return m.store.Get(ctx, refreshKey(principalID, jti))
}

// DeleteRefreshRecord consumes the record during rotation or revocation.
func (m *Manager) DeleteRefreshRecord(ctx context.Context, principalID, jti string) error {
	return m.store.Del(ctx, refreshKey(principalID, jti))
}
