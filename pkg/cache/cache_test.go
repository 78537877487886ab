package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Role string `json:"role"`
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewService(client)
	ctx := context.Background()

	var got entry
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrMiss)

	key := MembershipKey("club", "c1", "u1")
	require.NoError(t, c.Set(ctx, key, entry{Role: "admin"}, time.Minute))
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, "admin", got.Role)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrMiss)

	require.NoError(t, c.Set(ctx, key, entry{Role: "member"}, time.Minute))
	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, mr.Exists(key))
}

func TestNilClient(t *testing.T) {
	c := NewService(nil)
	ctx := context.Background()

	assert.False(t, c.IsAvailable())
	assert.NoError(t, c.Set(ctx, "k", entry{}, time.Minute))
	var got entry
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
	assert.NoError(t, c.Delete(ctx, "k"))
}
