package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStreamRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStreams_PublishReadAck(t *testing.T) {
	client := setupStreamRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "risk:requests", "risk-group"))
	// 重复创建不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "risk:requests", "risk-group"))

	id, err := PublishJSONToStream(ctx, client, "risk:requests", map[string]string{"user_id": "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "risk:requests", "risk-group", "worker-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, "user-1", decoded["user_id"])

	require.NoError(t, AckMessage(ctx, client, "risk:requests", "risk-group", msgs[0].ID))
	pending, err := client.XPending(ctx, "risk:requests", "risk-group").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestStreams_ReadPending(t *testing.T) {
	client := setupStreamRedis(t)
	ctx := context.Background()
	require.NoError(t, CreateConsumerGroup(ctx, client, "risk:requests", "risk-group"))

	// 没有 pending 时返回空列表
	msgs, err := ReadPendingFromStream(ctx, client, "risk:requests", "risk-group", "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	id, err := PublishJSONToStream(ctx, client, "risk:requests", map[string]string{"user_id": "user-1"})
	require.NoError(t, err)
	_, err = ReadFromStream(ctx, client, "risk:requests", "risk-group", "worker-1", 10, 0)
	require.NoError(t, err)

	// 未确认的消息可以被同一消费者重新读取
	msgs, err = ReadPendingFromStream(ctx, client, "risk:requests", "risk-group", "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	// 其他消费者看不到
	msgs, err = ReadPendingFromStream(ctx, client, "risk:requests", "risk-group", "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, AckMessage(ctx, client, "risk:requests", "risk-group", id))
	msgs, err = ReadPendingFromStream(ctx, client, "risk:requests", "risk-group", "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
