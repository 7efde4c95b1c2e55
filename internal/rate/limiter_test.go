package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cuzo151/dreamer-auth/kv"
)

func memLimiter(t *testing.T, multipliers map[string]float64) (*Limiter, *time.Time) {
	t.Helper()
	store := kv.NewMemory()
	t.Cleanup(store.Close)

	now := time.Now()
	l := New(store, multipliers, zerolog.Nop())
	l.now = func() time.Time { return now }
	return l, &now
}

func TestBucketDeniesWhenDrained(t *testing.T) {
	l, _ := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: TokenBucket, Capacity: 3, RefillAmount: 1, RefillInterval: time.Second}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "login", "usr-1", "", policy)
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied with tokens remaining", i)
		}
		if d.Remaining != int64(2-i) {
			t.Fatalf("Remaining after %d = %d, want %d", i, d.Remaining, 2-i)
		}
	}

	d, err := l.Allow(ctx, "login", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("drained bucket should deny")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Fatalf("RetryAfter = %v, want (0, 1s]", d.RetryAfter)
	}
}

func TestBucketRefills(t *testing.T) {
	l, now := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: TokenBucket, Capacity: 2, RefillAmount: 1, RefillInterval: time.Second}

	for i := 0; i < 2; i++ {
		if _, err := l.Allow(ctx, "login", "usr-1", "", policy); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}

	*now = now.Add(1500 * time.Millisecond)

	d, err := l.Allow(ctx, "login", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("one refill interval should restore a token")
	}

	d, err = l.Allow(ctx, "login", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("only one token refilled in 1.5 intervals")
	}
}

func TestBucketRefillCapsAtCapacity(t *testing.T) {
	l, now := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: TokenBucket, Capacity: 2, RefillAmount: 1, RefillInterval: time.Second}

	if _, err := l.Allow(ctx, "login", "usr-1", "", policy); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	*now = now.Add(time.Hour)

	d, err := l.Allow(ctx, "login", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Remaining != 1 {
		t.Fatalf("Remaining = %d, want 1 (capacity 2 minus this request)", d.Remaining)
	}
}

func TestBucketSubjectsIndependent(t *testing.T) {
	l, _ := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: TokenBucket, Capacity: 1, RefillAmount: 1, RefillInterval: time.Minute}

	if _, err := l.Allow(ctx, "login", "usr-1", "", policy); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	d, err := l.Allow(ctx, "login", "usr-2", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("subjects must not share budgets")
	}

	d, err = l.Allow(ctx, "refresh", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("resources must not share budgets")
	}
}

func TestSlidingWindowDenies(t *testing.T) {
	l, _ := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: SlidingWindow, Capacity: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "api", "usr-1", "", policy)
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied under the ceiling", i)
		}
	}

	d, err := l.Allow(ctx, "api", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth request in the window should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want (0, 1m]", d.RetryAfter)
	}
}

func TestSlidingWindowFreesSlots(t *testing.T) {
	l, now := memLimiter(t, nil)
	ctx := context.Background()
	policy := Policy{Algorithm: SlidingWindow, Capacity: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		if _, err := l.Allow(ctx, "api", "usr-1", "", policy); err != nil {
			t.Fatalf("Allow: %v", err)
		}
		*now = now.Add(10 * time.Second)
	}

	// 20s in: both stamps still inside the window.
	d, err := l.Allow(ctx, "api", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("window still full")
	}

	// 65s in: the first stamp has aged out.
	*now = now.Add(45 * time.Second)
	d, err = l.Allow(ctx, "api", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("aged-out stamp should free a slot")
	}
}

func TestTierMultiplierScalesCapacity(t *testing.T) {
	l, _ := memLimiter(t, map[string]float64{"anonymous": 0.5, "premium": 2})
	ctx := context.Background()
	policy := Policy{Algorithm: SlidingWindow, Capacity: 4, Window: time.Minute}

	// Anonymous gets 2 slots.
	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "api", "anon-1", "anonymous", policy)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("anonymous request %d denied under halved ceiling", i)
		}
	}
	d, err := l.Allow(ctx, "api", "anon-1", "anonymous", policy)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("anonymous tier should cap at 2")
	}

	// Premium gets 8.
	for i := 0; i < 8; i++ {
		d, err := l.Allow(ctx, "api", "prem-1", "premium", policy)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("premium request %d denied under doubled ceiling", i)
		}
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	l, _ := memLimiter(t, nil)

	_, err := l.Allow(context.Background(), "api", "usr-1", "", Policy{Algorithm: "leaky_bucket"})
	if err != ErrUnknownAlgorithm {
		t.Fatalf("err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestFailOpenOnStoreOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := New(kv.NewRedis(client, "t", 0), nil, zerolog.Nop())
	mr.Close()

	policy := Policy{Algorithm: TokenBucket, Capacity: 1, RefillAmount: 1, RefillInterval: time.Second}
	d, err := l.Allow(context.Background(), "api", "usr-1", "", policy)
	if err != nil {
		t.Fatalf("fail-open policy should swallow the store error, got %v", err)
	}
	if !d.Allowed {
		t.Fatal("fail-open policy should allow on outage")
	}

	policy.FailClosed = true
	d, err = l.Allow(context.Background(), "api", "usr-1", "", policy)
	if err == nil {
		t.Fatal("fail-closed policy should surface the store error")
	}
	if d.Allowed {
		t.Fatal("fail-closed policy must deny on outage")
	}
}
