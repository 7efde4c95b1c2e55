//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	dreamerauth "github.com/cuzo151/dreamer-auth"
	"github.com/cuzo151/dreamer-auth/mfa"
)

const testPassword = "Abcd123xyzQ!"

type memoryProvider struct {
	mu    sync.Mutex
	users map[string]dreamerauth.UserRecord
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{users: map[string]dreamerauth.UserRecord{}}
}

func (p *memoryProvider) add(u dreamerauth.UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u
}

func (p *memoryProvider) GetUserByIdentifier(_ context.Context, identifier string) (dreamerauth.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.Identifier == identifier {
			return u, nil
		}
	}
	return dreamerauth.UserRecord{}, errors.New("no such user")
}

func (p *memoryProvider) GetUserByID(_ context.Context, id string) (dreamerauth.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return dreamerauth.UserRecord{}, errors.New("no such user")
	}
	return u, nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.PasswordHash = newHash
	p.users[id] = u
	return nil
}

func (p *memoryProvider) SetTOTPSecret(_ context.Context, id, secret string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.TOTPSecret = secret
	u.MFAEnabled = enabled
	p.users[id] = u
	return nil
}

func (p *memoryProvider) ReplaceBackupCodes(_ context.Context, id string, codes []mfa.BackupCode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.BackupCodes = codes
	p.users[id] = u
	return nil
}

// newRedisEngine builds a full engine over the given Redis backend and
// seeds one user.
func newRedisEngine(t *testing.T, client redis.UniversalClient) (*dreamerauth.Engine, *memoryProvider) {
	t.Helper()

	provider := newMemoryProvider()
	engine, err := dreamerauth.New().
		WithRedis(client, "it").
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	hash, err := engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	provider.add(dreamerauth.UserRecord{
		ID:           "usr-1",
		Identifier:   "ada@example.com",
		PasswordHash: hash,
		Role:         "member",
		Tier:         "free",
	})

	return engine, provider
}

func newMiniredisClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client
}
