//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	dreamerauth "github.com/cuzo151/dreamer-auth"
)

// redisMode names one Redis backend the compatibility suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis; a real standalone server is added
// when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{name: "miniredis", setup: newMiniredisClient},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				client := redis.NewClient(&redis.Options{Addr: addr})
				t.Cleanup(func() {
					_ = client.FlushDB(context.Background()).Err()
					_ = client.Close()
				})
				return client
			},
		})
	}
	return modes
}

func TestFullCycleAcrossBackends(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			ctx := context.Background()
			engine, _ := newRedisEngine(t, mode.setup(t))

			login, err := engine.Login(ctx, "ada@example.com", testPassword)
			if err != nil {
				t.Fatalf("Login: %v", err)
			}

			principal, err := engine.Authenticate(ctx, login.Tokens.Access)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if principal.ID != "usr-1" {
				t.Fatalf("principal = %q, want usr-1", principal.ID)
			}

			rotated, err := engine.Refresh(ctx, login.Tokens.Refresh)
			if err != nil {
				t.Fatalf("Refresh: %v", err)
			}
			if rotated.SessionID != login.SessionID {
				t.Fatalf("session changed across refresh: %q vs %q", rotated.SessionID, login.SessionID)
			}

			// The spent refresh token must stay dead.
			if _, err := engine.Refresh(ctx, login.Tokens.Refresh); !errors.Is(err, dreamerauth.ErrTokenRevoked) {
				t.Fatalf("spent refresh error = %v, want ErrTokenRevoked", err)
			}

			if err := engine.Logout(ctx, rotated.Tokens.Access); err != nil {
				t.Fatalf("Logout: %v", err)
			}
			if _, err := engine.Authenticate(ctx, rotated.Tokens.Access); !errors.Is(err, dreamerauth.ErrTokenRevoked) {
				t.Fatalf("post-logout error = %v, want ErrTokenRevoked", err)
			}

			sessions, err := engine.Sessions(ctx, "usr-1")
			if err != nil {
				t.Fatalf("Sessions: %v", err)
			}
			if len(sessions) != 0 {
				t.Fatalf("sessions after logout = %d, want 0", len(sessions))
			}
		})
	}
}

func TestLockoutSharedAcrossEngines(t *testing.T) {
	ctx := context.Background()
	client := newMiniredisClient(t)

	engineA, provider := newRedisEngine(t, client)

	// Second engine over the same backend, sharing the lockout state.
	engineB, err := dreamerauth.New().
		WithRedis(client, "it").
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("Build second engine: %v", err)
	}
	t.Cleanup(engineB.Close)

	for i := 0; i < 5; i++ {
		if _, err := engineA.Login(ctx, "ada@example.com", "wrong-password-0!"); err == nil {
			t.Fatal("expected failure")
		}
	}

	if _, err := engineB.Login(ctx, "ada@example.com", testPassword); !errors.Is(err, dreamerauth.ErrAccountLocked) {
		t.Fatalf("cross-engine login error = %v, want ErrAccountLocked", err)
	}
}
