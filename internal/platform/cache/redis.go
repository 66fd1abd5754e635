package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis client shared by stock dedup, catalog caching
// and idempotency keys.
type Options struct {
	Addr     string
	PoolSize int
	// PingTimeout bounds the startup check. Defaults to 5s.
	PingTimeout time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		PoolSize: opts.PoolSize,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("settlement cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
