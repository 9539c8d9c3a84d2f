package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"smartgrid-monitor/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MetricsPath 遥测接入路径
const MetricsPath = "/post_metrics"

// HTTPPublisher 通过 POST /post_metrics 向 grid-monitor 上报遥测
type HTTPPublisher struct {
	client *resty.Client
	policy RetryPolicy
	logger *zap.Logger
}

// NewHTTPPublisher 创建 HTTP 上报端，timeout 为单次请求超时
func NewHTTPPublisher(baseURL string, timeout time.Duration, policy RetryPolicy, logger *zap.Logger) *HTTPPublisher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPPublisher{
		client: client,
		policy: policy,
		logger: logger,
	}
}

// Publish 上报一条遥测；连接失败与 5xx 会重试，4xx 视为永久失败
func (p *HTTPPublisher) Publish(ctx context.Context, ev *models.TelemetryEvent) error {
	return retry(ctx, p.policy, "http", p.logger, func() error {
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(ev).
			Post(MetricsPath)
		if err != nil {
			return fmt.Errorf("failed to post metrics: %w", err)
		}

		switch code := resp.StatusCode(); {
		case code >= http.StatusInternalServerError:
			return fmt.Errorf("grid monitor unavailable: status %d", code)
		case code >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("grid monitor rejected telemetry: status %d: %s", code, resp.String()))
		}
		return nil
	})
}
