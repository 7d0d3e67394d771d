package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisClientFrom(rdb), mr
}

func TestGenerateSeqID(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	t.Run("generates incrementing IDs", func(t *testing.T) {
		id1, err := client.GenerateSeqID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id1)

		id2, err := client.GenerateSeqID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, id1+1, id2)
	})

	t.Run("different groups have independent sequences", func(t *testing.T) {
		idA, err := client.GenerateSeqID(ctx, 100)
		require.NoError(t, err)

		idB, err := client.GenerateSeqID(ctx, 200)
		require.NoError(t, err)

		idA2, err := client.GenerateSeqID(ctx, 100)
		require.NoError(t, err)

		assert.Equal(t, int64(1), idA)
		assert.Equal(t, int64(1), idB)
		assert.Equal(t, idA+1, idA2)
	})
}

func TestUserRoute(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	t.Run("set get remove", func(t *testing.T) {
		online, err := client.IsUserOnline(ctx, 7)
		require.NoError(t, err)
		assert.False(t, online)

		require.NoError(t, client.SetUserRoute(ctx, 7, "node-1", time.Minute))

		node, err := client.GetUserRoute(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "node-1", node)

		online, err = client.IsUserOnline(ctx, 7)
		require.NoError(t, err)
		assert.True(t, online)

		require.NoError(t, client.RemoveUserRoute(ctx, 7))

		online, err = client.IsUserOnline(ctx, 7)
		require.NoError(t, err)
		assert.False(t, online)
	})

	t.Run("route expires after TTL", func(t *testing.T) {
		require.NoError(t, client.SetUserRoute(ctx, 8, "node-2", time.Second))

		online, err := client.IsUserOnline(ctx, 8)
		require.NoError(t, err)
		assert.True(t, online)

		mr.FastForward(2 * time.Second)

		online, err = client.IsUserOnline(ctx, 8)
		require.NoError(t, err)
		assert.False(t, online)
	})
}

func TestPubSub(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	pubsub, err := client.Subscribe(ctx, "notify:test")
	require.NoError(t, err)
	defer pubsub.Close()

	require.NoError(t, client.Publish(ctx, "notify:test", "hello"))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notify:test", msg.Channel)
	assert.Equal(t, "hello", msg.Payload)
}
