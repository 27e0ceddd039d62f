package failfast

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestLocalFlag(t *testing.T) {
	ctx := context.Background()
	f := &LocalFlag{}

	tripped, err := f.Tripped(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)

	require.NoError(t, f.Trip(ctx, "first"))
	require.NoError(t, f.Trip(ctx, "second"))

	tripped, err = f.Tripped(ctx)
	require.NoError(t, err)
	assert.True(t, tripped)
	assert.Equal(t, "first", f.TrippedBy())
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisFlag(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	f := NewRedisFlag(client, "session-1", time.Minute)
	other := NewRedisFlag(client, "session-2", time.Minute)

	tripped, err := f.Tripped(ctx)
	require.NoError(t, err)
	assert.False(t, tripped)

	require.NoError(t, f.Trip(ctx, "tests/a.py::test_one"))
	require.NoError(t, NewRedisFlag(client, "session-1", time.Minute).Trip(ctx, "tests/a.py::test_two"))

	tripped, err = f.Tripped(ctx)
	require.NoError(t, err)
	assert.True(t, tripped)

	by, err := f.TrippedBy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tests/a.py::test_one", by)

	tripped, err = other.Tripped(ctx)
	require.NoError(t, err)
	assert.False(t, tripped, "sessions are isolated")

	ttl, err := client.TTL(ctx, redisKeyPrefix+"session-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
