package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compare-and-swap as a single server-side script so two instances cannot
// interleave between the read and the write.
const casScript = `
local cur = redis.call("GET", KEYS[1])
if cur ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`

var casLua = redis.NewScript(casScript)

// Redis is a Store backed by a shared Redis deployment. Every call carries
// an operation timeout so a store outage surfaces as ErrUnavailable instead
// of blocking request handling.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

const defaultRedisTimeout = 2 * time.Second

// NewRedis creates a Redis-backed store. prefix namespaces all keys;
// timeout bounds each store call (defaults to 2s when zero).
func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func wrapRedisErr(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", wrapRedisErr(err)
	}
	return value, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// SetNX implements Store.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return ok, nil
}

// CompareAndSwap implements Store.
func (r *Redis) CompareAndSwap(ctx context.Context, key, prev, next string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	res, err := casLua.Run(ctx, r.client, []string{r.key(key)}, prev, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return res == 1, nil
}

// Incr implements Store.
func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	count, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, wrapRedisErr(err)
	}

	// TTL only on the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := r.client.Expire(ctx, r.key(key), ttl).Err(); err != nil {
			return 0, wrapRedisErr(err)
		}
	}
	return count, nil
}

// Del implements Store.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.key(key)
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// Expire implements Store.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if ttl <= 0 {
		if err := r.client.Persist(ctx, r.key(key)).Err(); err != nil {
			return wrapRedisErr(err)
		}
		return nil
	}
	if err := r.client.Expire(ctx, r.key(key), ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// SAdd implements Store.
func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	if err := r.client.SAdd(ctx, r.key(key), args...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// SRem implements Store.
func (r *Redis) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = member
	}
	if err := r.client.SRem(ctx, r.key(key), args...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

// SMembers implements Store.
func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.key(key)).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return members, nil
}
