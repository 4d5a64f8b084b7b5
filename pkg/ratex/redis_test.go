package ratex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreIncr(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	attempts, resetAt, err := store.Incr(ctx, "signin:203.0.113.1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)

	for want := 2; want <= 6; want++ {
		attempts, _, err = store.Incr(ctx, "signin:203.0.113.1", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, attempts)
	}

	// Key TTL doubles as the window reset.
	mr.FastForward(time.Minute + time.Second)
	attempts, _, err = store.Incr(ctx, "signin:203.0.113.1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestRedisStoreGovernor(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	g := NewGovernor(store)
	budget := Budget{MaxAttempts: 3, Window: time.Minute}

	for n := 1; n <= 3; n++ {
		res, err := g.Check(ctx, "signup:198.51.100.7", budget)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, 3-n, res.Remaining)
	}

	res, err := g.Check(ctx, "signup:198.51.100.7", budget)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 0, res.Remaining)
}
