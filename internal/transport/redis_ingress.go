package transport

import (
	"context"
	"fmt"
	"time"

	rediscommon "smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// RedisStreamIngress 以消费者组读取遥测流，入队后 ACK
type RedisStreamIngress struct {
	client   *rediscommon.Client
	stream   string
	group    string
	consumer string
	queue    Enqueuer
	logger   *zap.Logger

	batch int64
	block time.Duration
}

// NewRedisStreamIngress 创建 Redis Streams 接入
func NewRedisStreamIngress(client *rediscommon.Client, stream, group, consumer string, queue Enqueuer, logger *zap.Logger) *RedisStreamIngress {
	return &RedisStreamIngress{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		queue:    queue,
		logger:   logger,
		batch:    32,
		block:    time.Second,
	}
}

// Run 消费直到 ctx 结束；读取失败时指数退避
func (i *RedisStreamIngress) Run(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, i.client, i.stream, i.group); err != nil {
		return err
	}

	i.logger.Info("Redis telemetry ingress started",
		zap.String("stream", i.stream),
		zap.String("consumer_group", i.group),
		zap.String("consumer_name", i.consumer),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := i.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Error("Failed to consume telemetry stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consume 读取一批消息；无法解析的消息直接 ACK 丢弃
func (i *RedisStreamIngress) consume(ctx context.Context) error {
	messages, err := rediscommon.ReadFromStream(ctx, i.client, i.stream, i.group, i.consumer, i.batch, i.block)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", i.stream, err)
	}

	for _, msg := range messages {
		if ev, err := decodeTelemetry(msg); err != nil {
			i.logger.Warn("Dropping malformed telemetry", zap.String("id", msg.ID), zap.Error(err))
		} else if err := i.queue.Enqueue(ctx, ev); err != nil {
			return err
		}

		if err := rediscommon.AckMessages(ctx, i.client, i.stream, i.group, msg.ID); err != nil {
			return fmt.Errorf("failed to ack %s: %w", msg.ID, err)
		}
	}
	return nil
}

func decodeTelemetry(msg rediscommon.StreamMessage) (*models.TelemetryEvent, error) {
	data, err := msg.Data()
	if err != nil {
		return nil, err
	}
	return models.ParseTelemetryEvent(data)
}
