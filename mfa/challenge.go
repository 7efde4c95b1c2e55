package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuzo151/dreamer-auth/kv"
)

var (
	// ErrChallengeNotFound is returned when a challenge id is unknown,
	// expired, or already consumed.
	ErrChallengeNotFound = errors.New("mfa: challenge not found")
	// ErrChallengeAttempts is returned when a challenge has burned
	// through its attempt budget. The challenge is deleted.
	ErrChallengeAttempts = errors.New("mfa: challenge attempts exceeded")
)

const (
	challengeKeyPrefix   = "mfc"
	challengeSwapRetries = 5
)

// Challenge is the pending state between a successful password check and
// second-factor completion.
type Challenge struct {
	PrincipalID       string    `json:"pid"`
	DeviceFingerprint string    `json:"dfp"`
	RemoteIP          string    `json:"ip,omitempty"`
	Attempts          int       `json:"att"`
	ExpiresAt         time.Time `json:"exp"`
}

type challengeStore struct {
	store kv.Store
}

func challengeKey(id string) string {
	return challengeKeyPrefix + ":" + id
}

// CreateChallenge records a pending MFA login and returns its opaque id.
func (c *Coordinator) CreateChallenge(ctx context.Context, principalID, fingerprint, remoteIP string) (string, error) {
	id := uuid.NewString()
	record := Challenge{
		PrincipalID:       principalID,
		DeviceFingerprint: fingerprint,
		RemoteIP:          remoteIP,
		ExpiresAt:         time.Now().Add(c.config.ChallengeTTL),
	}
	if err := c.store.save(ctx, id, &record, c.config.ChallengeTTL); err != nil {
		return "", err
	}
	return id, nil
}

// GetChallenge loads a pending challenge, treating expiry as not-found.
func (c *Coordinator) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	return c.store.get(ctx, id)
}

// FailChallenge charges one attempt against the challenge. When the budget
// is exhausted the challenge is deleted and ErrChallengeAttempts returned.
// The increment is a compare-and-swap loop so concurrent wrong codes each
// cost a full attempt.
func (c *Coordinator) FailChallenge(ctx context.Context, id string) error {
	for attempt := 0; attempt < challengeSwapRetries; attempt++ {
		raw, record, err := c.store.getRaw(ctx, id)
		if err != nil {
			return err
		}

		record.Attempts++
		if record.Attempts >= c.config.MaxChallengeAttempts {
			_ = c.store.delete(ctx, id)
			return ErrChallengeAttempts
		}
		swapped, err := c.store.swap(ctx, id, raw, record, time.Until(record.ExpiresAt))
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	// Sustained contention here is many concurrent wrong codes against
	// one challenge; burn it.
	_ = c.store.delete(ctx, id)
	return ErrChallengeAttempts
}

// ConsumeChallenge removes the challenge so it cannot complete twice.
func (c *Coordinator) ConsumeChallenge(ctx context.Context, id string) error {
	return c.store.delete(ctx, id)
}

func (s challengeStore) save(ctx context.Context, id string, record *Challenge, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrChallengeNotFound
	}
	return s.store.Set(ctx, challengeKey(id), string(encoded), ttl)
}

func (s challengeStore) get(ctx context.Context, id string) (*Challenge, error) {
	_, record, err := s.getRaw(ctx, id)
	return record, err
}

// getRaw also returns the stored encoding so callers can swap against it.
func (s challengeStore) getRaw(ctx context.Context, id string) (string, *Challenge, error) {
	data, err := s.store.Get(ctx, challengeKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil, ErrChallengeNotFound
		}
		return "", nil, err
	}

	var record Challenge
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return "", nil, fmt.Errorf("mfa: corrupt challenge record: %w", err)
	}
	if time.Now().After(record.ExpiresAt) {
		_ = s.delete(ctx, id)
		return "", nil, ErrChallengeNotFound
	}
	return data, &record, nil
}

// swap replaces the stored record only if it still matches prev.
func (s challengeStore) swap(ctx context.Context, id, prev string, record *Challenge, ttl time.Duration) (bool, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, ErrChallengeNotFound
	}
	return s.store.CompareAndSwap(ctx, challengeKey(id), prev, string(encoded), ttl)
}

func (s challengeStore) delete(ctx context.Context, id string) error {
	return s.store.Del(ctx, challengeKey(id))
}
