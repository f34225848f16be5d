package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Limiter = (*Redis)(nil)

// fixedWindowScript increments the key's counter and sets the window expiry
// on first hit, atomically. Returns the count after increment.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Redis is a fixed-window limiter shared across service instances.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRedis(addr, prefix string, limit int, window time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	if prefix == "" {
		prefix = "rl"
	}
	return &Redis{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}, nil
}

func (r *Redis) Consume(ctx context.Context, key string) (bool, error) {
	count, err := fixedWindowScript.Run(ctx, r.client,
		[]string{r.prefix + ":" + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}
	return count <= r.limit, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
