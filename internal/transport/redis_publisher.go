package transport

import (
	"context"

	rediscommon "smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// RedisStreamPublisher 遥测 XADD 到统一的接入流
type RedisStreamPublisher struct {
	client *rediscommon.Client
	stream string
	policy RetryPolicy
	logger *zap.Logger
}

// NewRedisStreamPublisher 创建 Redis Streams 上报端
func NewRedisStreamPublisher(client *rediscommon.Client, stream string, policy RetryPolicy, logger *zap.Logger) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		policy: policy,
		logger: logger,
	}
}

// Publish 发布一条遥测
func (p *RedisStreamPublisher) Publish(ctx context.Context, ev *models.TelemetryEvent) error {
	return retry(ctx, p.policy, "redis", p.logger, func() error {
		_, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, ev)
		return err
	})
}
