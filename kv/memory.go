package kv

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory is an in-process Store backed by a TTL cache. Expiry bookkeeping
// is delegated to ttlcache; a single mutex serializes the compound
// operations (Incr, CompareAndSwap, set ops) that the cache cannot make
// atomic on its own.
type Memory struct {
	mu        sync.Mutex
	cache     *ttlcache.Cache[string, string]
	sets      map[string]map[string]struct{}
	setExpiry map[string]time.Time

	stopSweep chan struct{}
	closeOnce sync.Once
}

const setSweepInterval = time.Minute

// NewMemory creates an in-memory store with automatic expired-key cleanup.
// Call Close when done to stop the cleanup goroutines.
func NewMemory() *Memory {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()

	m := &Memory{
		cache:     cache,
		sets:      make(map[string]map[string]struct{}),
		setExpiry: make(map[string]time.Time),
		stopSweep: make(chan struct{}),
	}
	go m.sweepSets()
	return m
}

// Close stops the background cleanup.
func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		m.cache.Stop()
		close(m.stopSweep)
	})
}

// sweepSets reclaims expired sets that nobody reads anymore. The ttlcache
// janitor only covers plain keys.
func (m *Memory) sweepSets() {
	ticker := time.NewTicker(setSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for key, deadline := range m.setExpiry {
				if now.After(deadline) {
					delete(m.sets, key)
					delete(m.setExpiry, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// setLocked returns the live set at key, dropping it first when its
// expiry has passed. Callers must hold mu.
func (m *Memory) setLocked(key string) map[string]struct{} {
	if deadline, ok := m.setExpiry[key]; ok && time.Now().After(deadline) {
		delete(m.sets, key)
		delete(m.setExpiry, key)
		return nil
	}
	return m.sets[key]
}

func cacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.NoTTL
	}
	return ttl
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(key)
	if item == nil || item.IsExpired() {
		return "", ErrNotFound
	}
	return item.Value(), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Set(key, value, cacheTTL(ttl))
	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.cache.Get(key); item != nil && !item.IsExpired() {
		return false, nil
	}
	m.cache.Set(key, value, cacheTTL(ttl))
	return true, nil
}

// CompareAndSwap implements Store.
func (m *Memory) CompareAndSwap(_ context.Context, key, prev, next string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(key)
	if item == nil || item.IsExpired() || item.Value() != prev {
		return false, nil
	}
	m.cache.Set(key, next, cacheTTL(ttl))
	return true, nil
}

// Incr implements Store.
func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(key)
	if item == nil || item.IsExpired() {
		m.cache.Set(key, "1", cacheTTL(ttl))
		return 1, nil
	}

	count, err := strconv.ParseInt(item.Value(), 10, 64)
	if err != nil {
		count = 0
	}
	count++

	// Preserve the remaining window rather than restarting it.
	remaining := ttlcache.NoTTL
	if expires := item.ExpiresAt(); !expires.IsZero() {
		remaining = time.Until(expires)
	}
	m.cache.Set(key, strconv.FormatInt(count, 10), remaining)
	return count, nil
}

// Del implements Store.
func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		m.cache.Delete(key)
		delete(m.sets, key)
		delete(m.setExpiry, key)
	}
	return nil
}

// Expire implements Store.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.cache.Get(key); item != nil && !item.IsExpired() {
		m.cache.Set(key, item.Value(), cacheTTL(ttl))
	}
	if m.setLocked(key) != nil {
		if ttl > 0 {
			m.setExpiry[key] = time.Now().Add(ttl)
		} else {
			delete(m.setExpiry, key)
		}
	}
	return nil
}

// SAdd implements Store.
func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.setLocked(key)
	if set == nil {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

// SRem implements Store.
func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.setLocked(key)
	if set == nil {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
		delete(m.setExpiry, key)
	}
	return nil
}

// SMembers implements Store.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.setLocked(key)
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	return members, nil
}
