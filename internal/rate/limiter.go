// Package rate implements per-principal request throttling over the shared
// store. Two algorithms are available per resource: a token bucket for
// bursty traffic and a sliding window for hard ceilings. State updates use
// compare-and-swap so concurrent instances never double-spend.
package rate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/kv"
)

// Algorithm names accepted in a Policy.
const (
	TokenBucket   = "token_bucket"
	SlidingWindow = "sliding_window"
)

// ErrUnknownAlgorithm is returned for a Policy naming neither algorithm.
var ErrUnknownAlgorithm = errors.New("rate: unknown algorithm")

const (
	bucketKeyPrefix = "rtb"
	windowKeyPrefix = "rsw"

	// casRetries bounds the optimistic-update loop under contention.
	casRetries = 16
)

// Policy describes the limit for one resource.
type Policy struct {
	Algorithm string
	// Capacity is the bucket size or the window's request ceiling.
	Capacity int64
	// RefillAmount tokens are added every RefillInterval (token bucket).
	RefillAmount   int64
	RefillInterval time.Duration
	// Window is the sliding window span.
	Window time.Duration
	// FailClosed denies requests when the store is unreachable instead
	// of waving them through.
	FailClosed bool
}

// Decision is the outcome of one limit check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// RetryAfter is how long a denied caller should wait. Zero when
	// Allowed.
	RetryAfter time.Duration
}

// Limiter evaluates policies against the shared store. Tier multipliers
// scale a policy's capacity per subject tier, so one resource policy
// serves every plan level.
type Limiter struct {
	store       kv.Store
	multipliers map[string]float64
	log         zerolog.Logger
	now         func() time.Time
}

// New creates a limiter. multipliers maps tier names to capacity scale
// factors; unknown tiers use 1.0.
func New(store kv.Store, multipliers map[string]float64, log zerolog.Logger) *Limiter {
	return &Limiter{
		store:       store,
		multipliers: multipliers,
		log:         log,
		now:         time.Now,
	}
}

func (l *Limiter) capacityFor(p Policy, tier string) int64 {
	mult, ok := l.multipliers[tier]
	if !ok || mult <= 0 {
		return p.Capacity
	}
	scaled := int64(float64(p.Capacity) * mult)
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}

// Allow spends one unit of the subject's budget for the resource. The
// subject is typically a principal id or client address; the tier selects
// the capacity multiplier.
func (l *Limiter) Allow(ctx context.Context, resource, subject, tier string, policy Policy) (Decision, error) {
	var (
		decision Decision
		err      error
	)
	switch policy.Algorithm {
	case TokenBucket:
		decision, err = l.allowBucket(ctx, resource, subject, tier, policy)
	case SlidingWindow:
		decision, err = l.allowWindow(ctx, resource, subject, tier, policy)
	default:
		return Decision{}, ErrUnknownAlgorithm
	}
	if err == nil {
		return decision, nil
	}

	if policy.FailClosed {
		return Decision{Allowed: false, Limit: l.capacityFor(policy, tier)}, err
	}
	l.log.Warn().
		Err(err).
		Str("resource", resource).
		Str("subject", subject).
		Msg("rate limit store error, allowing request")
	capacity := l.capacityFor(policy, tier)
	return Decision{Allowed: true, Limit: capacity, Remaining: capacity}, nil
}

// bucketState is the persisted token-bucket record.
type bucketState struct {
	Tokens     int64 `json:"t"`
	LastRefill int64 `json:"r"` // unix nanos
}

func bucketKey(resource, subject string) string {
	return bucketKeyPrefix + ":" + resource + ":" + subject
}

// refill tops the bucket up for the time elapsed since the last refill.
// It is a pure function of elapsed time, so every instance computes the
// same result from the same stored state.
func refill(state bucketState, capacity int64, p Policy, now time.Time) bucketState {
	if p.RefillInterval <= 0 || p.RefillAmount <= 0 {
		return state
	}
	elapsed := now.UnixNano() - state.LastRefill
	if elapsed <= 0 {
		return state
	}
	ticks := elapsed / int64(p.RefillInterval)
	if ticks == 0 {
		return state
	}
	state.Tokens += ticks * p.RefillAmount
	if state.Tokens > capacity {
		state.Tokens = capacity
	}
	state.LastRefill += ticks * int64(p.RefillInterval)
	return state
}

func (l *Limiter) allowBucket(ctx context.Context, resource, subject, tier string, p Policy) (Decision, error) {
	capacity := l.capacityFor(p, tier)
	key := bucketKey(resource, subject)
	ttl := bucketTTL(capacity, p)

	for attempt := 0; attempt < casRetries; attempt++ {
		prev, err := l.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			// Fresh bucket: start full minus this request.
			state := bucketState{Tokens: capacity - 1, LastRefill: l.now().UnixNano()}
			encoded, err := json.Marshal(state)
			if err != nil {
				return Decision{}, err
			}
			ok, err := l.store.SetNX(ctx, key, string(encoded), ttl)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				continue
			}
			return Decision{Allowed: true, Limit: capacity, Remaining: state.Tokens}, nil
		}
		if err != nil {
			return Decision{}, err
		}

		var state bucketState
		if err := json.Unmarshal([]byte(prev), &state); err != nil {
			// Corrupt state: drop it and retry from scratch.
			if err := l.store.Del(ctx, key); err != nil {
				return Decision{}, err
			}
			continue
		}

		state = refill(state, capacity, p, l.now())
		if state.Tokens <= 0 {
			return Decision{
				Allowed:    false,
				Limit:      capacity,
				Remaining:  0,
				RetryAfter: nextRefillIn(state, p, l.now()),
			}, nil
		}

		state.Tokens--
		next, err := json.Marshal(state)
		if err != nil {
			return Decision{}, err
		}
		ok, err := l.store.CompareAndSwap(ctx, key, prev, string(next), ttl)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Allowed: true, Limit: capacity, Remaining: state.Tokens}, nil
		}
	}
	return Decision{}, errors.New("rate: bucket contention exhausted retries")
}

// nextRefillIn is how long until the bucket gains its next token.
func nextRefillIn(state bucketState, p Policy, now time.Time) time.Duration {
	if p.RefillInterval <= 0 {
		return 0
	}
	nextAt := state.LastRefill + int64(p.RefillInterval)
	wait := time.Duration(nextAt - now.UnixNano())
	if wait < 0 {
		wait = 0
	}
	return wait
}

// bucketTTL keeps idle bucket state around long enough to matter and no
// longer. Roughly twice the time for a full refill.
func bucketTTL(capacity int64, p Policy) time.Duration {
	if p.RefillInterval <= 0 || p.RefillAmount <= 0 {
		return time.Hour
	}
	ticksToFull := (capacity + p.RefillAmount - 1) / p.RefillAmount
	ttl := 2 * time.Duration(ticksToFull) * p.RefillInterval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func windowKey(resource, subject string) string {
	return windowKeyPrefix + ":" + resource + ":" + subject
}

func (l *Limiter) allowWindow(ctx context.Context, resource, subject, tier string, p Policy) (Decision, error) {
	capacity := l.capacityFor(p, tier)
	key := windowKey(resource, subject)

	for attempt := 0; attempt < casRetries; attempt++ {
		now := l.now()
		cutoff := now.Add(-p.Window).UnixNano()

		prev, err := l.store.Get(ctx, key)
		if errors.Is(err, kv.ErrNotFound) {
			encoded, err := json.Marshal([]int64{now.UnixNano()})
			if err != nil {
				return Decision{}, err
			}
			ok, err := l.store.SetNX(ctx, key, string(encoded), p.Window)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				continue
			}
			return Decision{Allowed: true, Limit: capacity, Remaining: capacity - 1}, nil
		}
		if err != nil {
			return Decision{}, err
		}

		var stamps []int64
		if err := json.Unmarshal([]byte(prev), &stamps); err != nil {
			if err := l.store.Del(ctx, key); err != nil {
				return Decision{}, err
			}
			continue
		}

		live := stamps[:0]
		for _, ts := range stamps {
			if ts > cutoff {
				live = append(live, ts)
			}
		}

		if int64(len(live)) >= capacity {
			// Oldest stamp leaving the window frees the next slot.
			retry := time.Duration(live[0]+int64(p.Window)-now.UnixNano())
			if retry < 0 {
				retry = 0
			}
			return Decision{Allowed: false, Limit: capacity, Remaining: 0, RetryAfter: retry}, nil
		}

		live = append(live, now.UnixNano())
		next, err := json.Marshal(live)
		if err != nil {
			return Decision{}, err
		}
		ok, err := l.store.CompareAndSwap(ctx, key, prev, string(next), p.Window)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Allowed: true, Limit: capacity, Remaining: capacity - int64(len(live))}, nil
		}
	}
	return Decision{}, errors.New("rate: window contention exhausted retries")
}
