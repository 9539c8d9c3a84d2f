package repository

import (
	"context"
	"testing"

	"smartgrid-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, "turbine:%d:metrics", zap.NewNop())
}

func TestRedisStore_AppendAndRead(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, telemetry(1, models.StatusHealthy, 1)))
	require.NoError(t, store.Append(ctx, telemetry(2, models.StatusHealthy, 2)))
	require.NoError(t, store.Append(ctx, telemetry(1, models.StatusBroken, 3)))

	assert.Equal(t, "turbine:1:metrics", store.Key(1))
	assert.True(t, mr.Exists("turbine:1:metrics"))
	assert.True(t, mr.Exists("turbine:2:metrics"))

	events, err := store.ReadPartition(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusBroken, events[1].Status)
	assert.Equal(t, "redis", store.Backend())
}

func TestRedisStore_AppendFailsWhenServerDown(t *testing.T) {
	mr, store := setupRedisStore(t)
	mr.Close()

	err := store.Append(context.Background(), telemetry(1, models.StatusHealthy, 1))
	assert.Error(t, err)
}
