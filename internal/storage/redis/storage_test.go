package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStorage(client, ttl), mr
}

// ---------------------------------------------------------------------------
// Get
// ---------------------------------------------------------------------------

func TestStorage_Get_Success(t *testing.T) {
	s, mr := setupTestRedis(t, time.Hour)
	require.NoError(t, mr.Set("agricoventas:user:u-1:cart", `{"version":1,"lines":[]}`))

	val, ok, err := s.ForUser("u-1").Get(context.Background(), "cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"version":1,"lines":[]}`, val)
}

func TestStorage_Get_Missing(t *testing.T) {
	s, _ := setupTestRedis(t, time.Hour)

	val, ok, err := s.ForUser("u-1").Get(context.Background(), "cart")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestStorage_Get_ServerDown(t *testing.T) {
	s, mr := setupTestRedis(t, time.Hour)
	mr.Close()

	_, ok, err := s.ForUser("u-1").Get(context.Background(), "cart")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis get cart")
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

func TestStorage_Set_ScopesByUser(t *testing.T) {
	s, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.ForUser("u-1").Set(ctx, "cart", "one"))
	require.NoError(t, s.ForUser("u-2").Set(ctx, "cart", "two"))

	got, err := mr.Get("agricoventas:user:u-1:cart")
	require.NoError(t, err)
	assert.Equal(t, "one", got)

	got, err = mr.Get("agricoventas:user:u-2:cart")
	require.NoError(t, err)
	assert.Equal(t, "two", got)
}

func TestStorage_Set_TTL(t *testing.T) {
	s, mr := setupTestRedis(t, 24*time.Hour)

	require.NoError(t, s.ForUser("u-1").Set(context.Background(), "cart", "x"))

	ttl := mr.TTL("agricoventas:user:u-1:cart")
	assert.True(t, ttl > 23*time.Hour, "expected TTL > 23h, got %v", ttl)
	assert.True(t, ttl <= 24*time.Hour, "expected TTL <= 24h, got %v", ttl)
}

func TestStorage_Set_TTLExpires(t *testing.T) {
	s, mr := setupTestRedis(t, time.Minute)
	user := s.ForUser("u-1")
	ctx := context.Background()

	require.NoError(t, user.Set(ctx, "cart", "x"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := user.Get(ctx, "cart")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_Set_Overwrites(t *testing.T) {
	s, _ := setupTestRedis(t, time.Hour)
	user := s.ForUser("u-1")
	ctx := context.Background()

	require.NoError(t, user.Set(ctx, "cart", "a"))
	require.NoError(t, user.Set(ctx, "cart", "b"))

	val, _, err := user.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "b", val)
}
