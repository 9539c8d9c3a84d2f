package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// PublishJSON 把 data 序列化为 JSON 后发布到 pub/sub 频道，返回收到消息的订阅者数
func PublishJSON(ctx context.Context, client *redis.Client, channel string, data interface{}) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal pubsub payload: %w", err)
	}
	receivers, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return receivers, nil
}

// PSubscribe 按模式订阅频道，返回前确认订阅已生效
func PSubscribe(ctx context.Context, client *redis.Client, patterns ...string) (*redis.PubSub, error) {
	ps := client.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", patterns, err)
	}
	return ps, nil
}
