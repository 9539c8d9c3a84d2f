package repository

import (
	"context"
	"fmt"

	"smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// RedisStore 每台风机一个 Redis Stream（XADD）
type RedisStore struct {
	client    *redis.Client
	keyFormat string
	logger    *zap.Logger
}

// NewRedisStore keyFormat 形如 "turbine:%d:metrics"
func NewRedisStore(client *redis.Client, keyFormat string, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		keyFormat: keyFormat,
		logger:    logger,
	}
}

// Backend 存储后端名
func (s *RedisStore) Backend() string {
	return "redis"
}

// Key 风机分区的流键
func (s *RedisStore) Key(turbine int) string {
	return fmt.Sprintf(s.keyFormat, turbine)
}

// Append 追加一条遥测
func (s *RedisStore) Append(ctx context.Context, ev *models.TelemetryEvent) error {
	if _, err := redis.PublishJSONToStream(ctx, s.client, s.Key(ev.TurbineNumber), ev); err != nil {
		return fmt.Errorf("failed to append telemetry for turbine %d: %w", ev.TurbineNumber, err)
	}
	return nil
}

// ReadPartition 按写入顺序读取一台风机的全部记录
func (s *RedisStore) ReadPartition(ctx context.Context, turbine int) ([]models.TelemetryEvent, error) {
	messages, err := redis.ReadStreamRange(ctx, s.client, s.Key(turbine))
	if err != nil {
		return nil, err
	}

	events := make([]models.TelemetryEvent, 0, len(messages))
	for _, msg := range messages {
		data, err := msg.Data()
		if err != nil {
			s.logger.Warn("Skipping stream entry", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		ev, err := models.ParseTelemetryEvent(data)
		if err != nil {
			s.logger.Warn("Skipping malformed stream entry", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}
