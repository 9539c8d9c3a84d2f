package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DataField 流消息中承载 JSON 载荷的字段名
const DataField = "data"

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Data 返回消息中的 JSON 载荷
func (m StreamMessage) Data() ([]byte, error) {
	switch v := m.Values[DataField].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("stream message %s has no %q field", m.ID, DataField)
	}
}

// PublishJSONToStream 把 data 序列化为 JSON 后通过 XADD 追加到 stream
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			DataField:   string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}

// CreateConsumerGroup 创建消费者组（stream 不存在时一并创建，组已存在视为成功）
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream string, groupName string) error {
	err := client.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", groupName, stream, err)
	}
	return nil
}

// ReadFromStream 通过 XREADGROUP 读取新消息，block 为最长阻塞时间
func ReadFromStream(ctx context.Context, client *redis.Client, stream string, consumerGroup string, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}
	return messages, nil
}

// AckMessages 确认消息已处理
func AckMessages(ctx context.Context, client *redis.Client, stream string, consumerGroup string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return client.XAck(ctx, stream, consumerGroup, ids...).Err()
}

// ReadStreamRange 按插入顺序读取整个 stream（只读，用于报表与测试）
func ReadStreamRange(ctx context.Context, client *redis.Client, stream string) ([]StreamMessage, error) {
	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}

	messages := make([]StreamMessage, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, StreamMessage{Stream: stream, ID: msg.ID, Values: msg.Values})
	}
	return messages, nil
}
