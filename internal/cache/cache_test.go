package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/logger"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.Get(ctx, "mc:abc:dom/Element.cpp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "mc:abc:dom/Element.cpp", "int main() {}"))
	v, ok, err := c.Get(ctx, "mc:abc:dom/Element.cpp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "int main() {}", v)

	// Empty contents are a valid cached value.
	require.NoError(t, c.Set(ctx, "mc:abc:missing.cpp", ""))
	v, ok, _ = c.Get(ctx, "mc:abc:missing.cpp")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedis(client, time.Minute, logger.Nop())
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "key")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, "key", "value"))
}
