// Package transport 遥测与维修通知的跨进程传输：HTTP、MQTT、Redis。
package transport

import (
	"context"
	"time"

	"smartgrid-monitor/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy 上报失败的指数退避参数；不设总时长上限，只受 ctx 约束
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy 默认退避：0.5s 起步，最长 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// retry 重试 op 直到成功、遇到 backoff.Permanent 错误或 ctx 结束
func retry(ctx context.Context, policy RetryPolicy, transport string, logger *zap.Logger, op func() error) error {
	return backoff.RetryNotify(op, policy.backOff(ctx), func(err error, wait time.Duration) {
		metrics.RecordTransportRetry(transport)
		logger.Warn("Telemetry submission failed, retrying",
			zap.String("transport", transport),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
}
