package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"supportdesk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProvider_GetSet(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()

	_, err := p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, p.Set(ctx, "k", []byte("v"), 0))
	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, p.Del(ctx, "k"))
	_, err = p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProvider_TTL(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := p.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryProvider_SetNX(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ok, err := p.SetNX(ctx, "msg-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.SetNX(ctx, "msg-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	ok, err = p.SetNX(ctx, "msg-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryProvider_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	buf := []byte("abc")
	require.NoError(t, p.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisProvider(t *testing.T) {
	addr := os.Getenv("SUPPORTDESK_TEST_REDIS_URL")
	if addr == "" {
		addr = "redis://localhost:6379/15"
	}
	rdb, err := NewRedisClient(config.RedisConfig{URL: addr}, nil)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	p := NewRedisProvider(rdb, nil)
	defer p.Close()

	ctx := context.Background()
	key := "supportdesk:test:" + t.Name()
	_ = p.Del(ctx, key)

	_, err = p.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	ok, err := p.SetNX(ctx, key, []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.SetNX(ctx, key, []byte("2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := p.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))
	require.NoError(t, p.Del(ctx, key))
}
