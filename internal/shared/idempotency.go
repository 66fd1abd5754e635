package shared

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// DedupStore claims short-lived keys in Redis so retried requests do not repeat
// side effects outside the database.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupStore constructs the store. A zero ttl defaults to ten minutes.
func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupStore{client: client, ttl: ttl}
}

// Claim records the key, failing with ErrIdempotencyConflict when it is held.
func (s *DedupStore) Claim(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	ok, err := s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release removes a key, typically used to roll back failed processing.
func (s *DedupStore) Release(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	return s.client.Del(ctx, key).Err()
}
