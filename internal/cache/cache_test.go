package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string   `json:"name"`
	Perms []string `json:"perms"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache[profile], *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New[profile](client, "test:profile", ttl), mr
}

func TestCache(t *testing.T) {
	t.Parallel()

	t.Run("round trips typed values", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)
		ctx := context.Background()

		want := profile{Name: "alice", Perms: []string{"posts:read"}}
		require.NoError(t, c.Set(ctx, "u1", want))

		got, ok, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	})

	t.Run("missing key is a miss, not an error", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)

		_, ok, err := c.Get(context.Background(), "nobody")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("entries expire with the TTL", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "u1", profile{Name: "alice"}))
		mr.FastForward(2 * time.Minute)

		_, ok, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unreadable stored value is dropped and reported as a miss", func(t *testing.T) {
		c, mr := newTestCache(t, time.Minute)
		ctx := context.Background()

		require.NoError(t, mr.Set("test:profile:u1", "{not json"))

		_, ok, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		require.False(t, ok)
		require.False(t, mr.Exists("test:profile:u1"))
	})

	t.Run("delete removes multiple keys at once", func(t *testing.T) {
		c, _ := newTestCache(t, time.Minute)
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "u1", profile{}))
		require.NoError(t, c.Set(ctx, "u2", profile{}))
		require.NoError(t, c.Delete(ctx, "u1", "u2"))

		_, ok, err := c.Get(ctx, "u1")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
