package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMirror_Counts(t *testing.T) {
	ctx := context.Background()
	client := redisTestClient(t)

	mirror := NewRedisMirror(client, "presence:test:"+t.Name(), "a", time.Minute)
	require.NoError(t, mirror.Reset(ctx))
	t.Cleanup(func() { _ = mirror.Reset(context.Background()) })

	require.NoError(t, mirror.Connected(ctx, "b"))
	require.NoError(t, mirror.Connected(ctx, "a"))
	require.NoError(t, mirror.Connected(ctx, "a"))

	online, err := mirror.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, online)

	ttl, err := client.PTTL(ctx, mirror.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, mirror.Disconnected(ctx, "a"))
	require.NoError(t, mirror.Disconnected(ctx, "b"))
	online, err = mirror.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, online)

	require.NoError(t, mirror.Disconnected(ctx, "a"))
	online, err = mirror.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestRedisMirror_ResetKeepsOtherInstances(t *testing.T) {
	ctx := context.Background()
	client := redisTestClient(t)
	prefix := "presence:test:" + t.Name()

	first := NewRedisMirror(client, prefix, "one", time.Minute)
	second := NewRedisMirror(client, prefix, "two", time.Minute)
	t.Cleanup(func() {
		_ = first.Reset(context.Background())
		_ = second.Reset(context.Background())
	})

	require.NoError(t, first.Connected(ctx, "alice"))
	require.NoError(t, second.Connected(ctx, "bob"))
	require.NoError(t, second.Connected(ctx, "alice"))

	online, err := first.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	// a restart of the first process must not erase the second one's counts
	restarted := NewRedisMirror(client, prefix, "one", time.Minute)
	require.NoError(t, restarted.Reset(ctx))

	online, err = second.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)
}

func TestRedisMirror_ExpiresWithoutTouch(t *testing.T) {
	ctx := context.Background()
	client := redisTestClient(t)

	mirror := NewRedisMirror(client, "presence:test:"+t.Name(), "crashed", 50*time.Millisecond)
	t.Cleanup(func() { _ = mirror.Reset(context.Background()) })
	require.NoError(t, mirror.Connected(ctx, "alice"))

	require.Eventually(t, func() bool {
		online, err := mirror.Online(ctx)
		return err == nil && len(online) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNopMirror(t *testing.T) {
	var m Mirror = NopMirror{}
	require.NoError(t, m.Connected(context.Background(), "a"))
	online, err := m.Online(context.Background())
	require.NoError(t, err)
	assert.Nil(t, online)
}
