package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/kv"
)

func testRegistry(t *testing.T, cfg Config) (*Registry, *kv.Memory) {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)
	return NewRegistry(cfg, store, zerolog.Nop()), store
}

func TestCreateAndValidate(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute, MaxPerPrincipal: 5})
	ctx := context.Background()

	sess, err := reg.Create(ctx, "usr-1", "fp-laptop", "198.51.100.7")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" || sess.PrincipalID != "usr-1" {
		t.Fatalf("unexpected session record: %+v", sess)
	}

	ok, err := reg.Validate(ctx, "usr-1", sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Fatal("expected session to validate")
	}
}

func TestValidateRejectsWrongPrincipal(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute})
	ctx := context.Background()

	sess, err := reg.Create(ctx, "usr-1", "fp", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := reg.Validate(ctx, "usr-2", sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("session must not validate for a different principal")
	}
}

func TestValidateUnknownSession(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute})

	ok, err := reg.Validate(context.Background(), "usr-1", "01JABCDEFGH000000000000000")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("unknown session must not validate")
	}
}

func TestValidateSlidesExpiry(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: 150 * time.Millisecond})
	ctx := context.Background()

	sess, err := reg.Create(ctx, "usr-1", "fp", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Keep touching the session past its original TTL.
	for i := 0; i < 3; i++ {
		time.Sleep(80 * time.Millisecond)
		ok, err := reg.Validate(ctx, "usr-1", sess.ID)
		if err != nil {
			t.Fatalf("Validate round %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("session expired on round %d despite activity", i)
		}
	}

	time.Sleep(200 * time.Millisecond)
	ok, err := reg.Validate(ctx, "usr-1", sess.ID)
	if err != nil {
		t.Fatalf("Validate after idle: %v", err)
	}
	if ok {
		t.Fatal("idle session should have expired")
	}
}

func TestConcurrencyCapEvictsOldest(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute, MaxPerPrincipal: 3})
	ctx := context.Background()

	var created []*Session
	for i := 0; i < 4; i++ {
		sess, err := reg.Create(ctx, "usr-1", fmt.Sprintf("fp-%d", i), "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		created = append(created, sess)
		time.Sleep(5 * time.Millisecond)
	}

	ok, err := reg.Validate(ctx, "usr-1", created[0].ID)
	if err != nil {
		t.Fatalf("Validate evicted: %v", err)
	}
	if ok {
		t.Fatal("oldest session should have been evicted")
	}

	for _, sess := range created[1:] {
		ok, err := reg.Validate(ctx, "usr-1", sess.ID)
		if err != nil {
			t.Fatalf("Validate survivor %s: %v", sess.ID, err)
		}
		if !ok {
			t.Fatalf("session %s should have survived eviction", sess.ID)
		}
	}

	active, err := reg.List(ctx, "usr-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("active sessions = %d, want 3", len(active))
	}
}

func TestCapDoesNotCrossPrincipals(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute, MaxPerPrincipal: 1})
	ctx := context.Background()

	a, err := reg.Create(ctx, "usr-a", "fp", "")
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if _, err := reg.Create(ctx, "usr-b", "fp", ""); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	ok, err := reg.Validate(ctx, "usr-a", a.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok {
		t.Fatal("another principal's login must not evict this session")
	}
}

func TestDelete(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute})
	ctx := context.Background()

	sess, err := reg.Create(ctx, "usr-1", "fp", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Delete(ctx, "usr-1", sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	ok, err := reg.Validate(ctx, "usr-1", sess.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("deleted session must not validate")
	}
}

func TestRevokeAll(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: time.Minute, MaxPerPrincipal: 5})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := reg.Create(ctx, "usr-1", fmt.Sprintf("fp-%d", i), "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		ids = append(ids, sess.ID)
	}
	if err := reg.RevokeAll(ctx, "usr-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}

	for _, id := range ids {
		ok, err := reg.Validate(ctx, "usr-1", id)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if ok {
			t.Fatalf("session %s should be revoked", id)
		}
	}

	active, err := reg.List(ctx, "usr-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active sessions after revoke = %d, want 0", len(active))
	}
}

func TestListPrunesExpiredRecords(t *testing.T) {
	reg, _ := testRegistry(t, Config{TTL: 60 * time.Millisecond, MaxPerPrincipal: 5})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "usr-1", "fp-old", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	active, err := reg.List(ctx, "usr-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expired session still listed: %d", len(active))
	}
}

func TestRegistryOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := NewRegistry(Config{TTL: time.Minute, MaxPerPrincipal: 2}, kv.NewRedis(client, "t", 0), zerolog.Nop())
	ctx := context.Background()

	var created []*Session
	for i := 0; i < 3; i++ {
		sess, err := reg.Create(ctx, "usr-1", fmt.Sprintf("fp-%d", i), "")
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		created = append(created, sess)
		time.Sleep(5 * time.Millisecond)
	}

	ok, err := reg.Validate(ctx, "usr-1", created[0].ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("oldest session should have been evicted")
	}

	active, err := reg.List(ctx, "usr-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active sessions = %d, want 2", len(active))
	}
}
