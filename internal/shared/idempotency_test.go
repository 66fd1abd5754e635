package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestDedupStoreClaimAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewDedupStore(client, time.Minute)
	ctx := context.Background()
	key := StockDedupKey(42, "reduce")

	require.NoError(t, store.Claim(ctx, key))
	require.ErrorIs(t, store.Claim(ctx, key), ErrIdempotencyConflict)

	require.NoError(t, store.Release(ctx, key))
	require.NoError(t, store.Claim(ctx, key))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.Claim(ctx, key))
}

func TestDedupStoreNilIsNoop(t *testing.T) {
	var store *DedupStore
	require.NoError(t, store.Claim(context.Background(), "k"))
	require.NoError(t, store.Release(context.Background(), "k"))
}
