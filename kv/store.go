// Package kv defines the key-value storage primitives shared by the session
// registry, login guard, token blacklist, and rate limiter. Two
// implementations exist: [Memory] for single-instance deployments and
// [Redis] for multi-instance deployments. Components depend only on [Store],
// so the algorithmic logic is identical across topologies.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable indicates the backing store is unreachable. Callers
	// apply their fail-open/fail-closed policy when they see it.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the atomic key-value surface backing all abuse-prevention state.
//
// All operations are atomic with respect to each other. A ttl of zero or
// less means the key does not expire.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key=value with the given ttl, replacing any prior value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key=value only if the key does not already exist.
	// Returns true if the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the value of key with next only if the
	// current value equals prev. Returns true if the swap happened; false
	// if the key is missing or holds a different value.
	CompareAndSwap(ctx context.Context, key, prev, next string, ttl time.Duration) (bool, error)

	// Incr increments the integer counter at key and returns the new
	// value. The ttl is applied only when the increment creates the key,
	// giving fixed-window semantics.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Expire sets or refreshes the ttl on an existing key, sets
	// included. A ttl of zero or less removes any expiry; missing keys
	// are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key. A missing set
	// yields an empty slice, not an error.
	SMembers(ctx context.Context, key string) ([]string, error)
}
