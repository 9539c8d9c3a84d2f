package redis

import (
	"context"
	"fmt"
	"time"

	"smartgrid-monitor/common/config"

	"github.com/go-redis/redis/v8"
)

// Client go-redis 客户端
type Client = redis.Client

// NewRedisClient 按配置构造客户端（不发起连接）
//
// ReadTimeout 需大于 XREADGROUP 的阻塞时长，否则阻塞读会被当作超时。
func NewRedisClient(cfg *config.RedisConfig) *Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
}

// Connect 构造客户端并确认服务端可达
func Connect(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := NewRedisClient(cfg)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Ping 探活
func Ping(ctx context.Context, client *Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭客户端，nil 安全
func Close(client *Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
