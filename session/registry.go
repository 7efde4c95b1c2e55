// Package session implements the per-device session registry: sliding-TTL
// session records with a per-principal concurrency cap that evicts the
// oldest sessions first.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/kv"
)

// ErrLockContention is returned when the per-principal eviction lock could
// not be acquired. Callers treat it like store unavailability.
var ErrLockContention = errors.New("session: principal lock contention")

const (
	recordKeyPrefix = "ses"
	setKeyPrefix    = "sel"
	lockKeyPrefix   = "slk"
)

// Session is one device's authenticated presence. LastActivityAt slides
// forward on every successful validation, carrying the TTL with it.
type Session struct {
	ID                string        `json:"id"`
	PrincipalID       string        `json:"pid"`
	DeviceFingerprint string        `json:"dfp"`
	RemoteIP          string        `json:"ip,omitempty"`
	CreatedAt         time.Time     `json:"cat"`
	LastActivityAt    time.Time     `json:"lat"`
	TTL               time.Duration `json:"ttl"`
}

// Config tunes the registry.
type Config struct {
	// TTL is the sliding idle timeout.
	TTL time.Duration
	// MaxPerPrincipal caps concurrent sessions per principal; zero or
	// negative disables the cap.
	MaxPerPrincipal int
	// LockTTL bounds how long the eviction lease may be held.
	LockTTL time.Duration
	// LockRetries is how many times acquisition is retried before
	// giving up.
	LockRetries int
	// LockRetryDelay is the pause between acquisition attempts.
	LockRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Second
	}
	if c.LockRetries <= 0 {
		c.LockRetries = 20
	}
	if c.LockRetryDelay <= 0 {
		c.LockRetryDelay = 25 * time.Millisecond
	}
	return c
}

// Registry manages session records in the shared store.
type Registry struct {
	store  kv.Store
	config Config
	log    zerolog.Logger
}

// NewRegistry creates a session registry over the given store.
func NewRegistry(cfg Config, store kv.Store, log zerolog.Logger) *Registry {
	return &Registry{store: store, config: cfg.withDefaults(), log: log}
}

func recordKey(id string) string {
	return recordKeyPrefix + ":" + id
}

func setKey(principalID string) string {
	return setKeyPrefix + ":" + principalID
}

func lockKey(principalID string) string {
	return lockKeyPrefix + ":" + principalID
}

// Create registers a new session and enforces the concurrency cap. Session
// ids are ULIDs, so lexical order is creation order and eviction has a
// deterministic tie-break.
func (r *Registry) Create(ctx context.Context, principalID, fingerprint, remoteIP string) (*Session, error) {
	unlock, err := r.acquireLock(ctx, principalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now()
	record := &Session{
		ID:                ulid.Make().String(),
		PrincipalID:       principalID,
		DeviceFingerprint: fingerprint,
		RemoteIP:          remoteIP,
		CreatedAt:         now,
		LastActivityAt:    now,
		TTL:               r.config.TTL,
	}

	if err := r.save(ctx, record, r.config.TTL); err != nil {
		return nil, err
	}
	if err := r.store.SAdd(ctx, setKey(principalID), record.ID); err != nil {
		return nil, err
	}
	if err := r.touchSet(ctx, principalID); err != nil {
		return nil, err
	}

	if err := r.enforceCap(ctx, principalID); err != nil {
		return nil, err
	}
	return record, nil
}

// enforceCap evicts the oldest-created sessions until the principal is
// within the limit. Callers must hold the principal lock.
func (r *Registry) enforceCap(ctx context.Context, principalID string) error {
	if r.config.MaxPerPrincipal <= 0 {
		return nil
	}

	active, err := r.list(ctx, principalID)
	if err != nil {
		return err
	}
	if len(active) <= r.config.MaxPerPrincipal {
		return nil
	}

	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})

	for _, victim := range active[:len(active)-r.config.MaxPerPrincipal] {
		if err := r.Delete(ctx, principalID, victim.ID); err != nil {
			return err
		}
		r.log.Debug().
			Str("principal_id", principalID).
			Str("session_id", victim.ID).
			Msg("session evicted by concurrency cap")
	}
	return nil
}

// Validate checks that the session exists and belongs to the principal,
// then slides the TTL forward. Store errors propagate so auth-critical
// callers fail closed.
func (r *Registry) Validate(ctx context.Context, principalID, sessionID string) (bool, error) {
	record, err := r.get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if record.PrincipalID != principalID {
		return false, nil
	}

	record.LastActivityAt = time.Now()
	if err := r.save(ctx, record, record.TTL); err != nil {
		return false, err
	}
	if err := r.touchSet(ctx, principalID); err != nil {
		return false, err
	}
	return true, nil
}

// touchSet refreshes the index set's idle expiry. Twice the session TTL,
// so the set always outlives its most recently refreshed member and
// idle principals stop costing store memory.
func (r *Registry) touchSet(ctx context.Context, principalID string) error {
	return r.store.Expire(ctx, setKey(principalID), 2*r.config.TTL)
}

// Get loads one session record.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	return r.get(ctx, sessionID)
}

// List returns the principal's live sessions, pruning ids whose records
// have already expired.
func (r *Registry) List(ctx context.Context, principalID string) ([]*Session, error) {
	return r.list(ctx, principalID)
}

func (r *Registry) list(ctx context.Context, principalID string) ([]*Session, error) {
	ids, err := r.store.SMembers(ctx, setKey(principalID))
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(ids))
	var stale []string
	for _, id := range ids {
		record, err := r.get(ctx, id)
		if errors.Is(err, kv.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, record)
	}
	if len(stale) > 0 {
		// Expired records leave dangling set members; sweep them here.
		if err := r.store.SRem(ctx, setKey(principalID), stale...); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Delete removes one session.
func (r *Registry) Delete(ctx context.Context, principalID, sessionID string) error {
	if err := r.store.Del(ctx, recordKey(sessionID)); err != nil {
		return err
	}
	return r.store.SRem(ctx, setKey(principalID), sessionID)
}

// RevokeAll wipes every session for the principal, used on password change
// or suspected compromise.
func (r *Registry) RevokeAll(ctx context.Context, principalID string) error {
	ids, err := r.store.SMembers(ctx, setKey(principalID))
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, recordKey(id))
	}
	keys = append(keys, setKey(principalID))
	return r.store.Del(ctx, keys...)
}

func (r *Registry) save(ctx context.Context, record *Session, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, recordKey(record.ID), string(encoded), ttl)
}

func (r *Registry) get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.store.Get(ctx, recordKey(sessionID))
	if err != nil {
		return nil, err
	}
	var record Session
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("session: corrupt record: %w", err)
	}
	return &record, nil
}

// acquireLock takes the short per-principal lease that makes create-evict
// read-modify-write atomic across instances.
func (r *Registry) acquireLock(ctx context.Context, principalID string) (func(), error) {
	key := lockKey(principalID)
	for attempt := 0; attempt <= r.config.LockRetries; attempt++ {
		ok, err := r.store.SetNX(ctx, key, "1", r.config.LockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { _ = r.store.Del(ctx, key) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.config.LockRetryDelay):
		}
	}
	return nil, ErrLockContention
}
