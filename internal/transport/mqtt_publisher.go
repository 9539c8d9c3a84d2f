package transport

import (
	"context"
	"encoding/json"
	"fmt"

	mqttcommon "smartgrid-monitor/common/mqtt"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// MQTTClient common/mqtt.Client 中传输层用到的部分
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	QoS() byte
}

// MQTTPublisher 遥测发布到 turbine/{n}/metrics
type MQTTPublisher struct {
	client      MQTTClient
	topicFormat string
	policy      RetryPolicy
	logger      *zap.Logger
}

// NewMQTTPublisher topicFormat 形如 "turbine/%d/metrics"
func NewMQTTPublisher(client MQTTClient, topicFormat string, policy RetryPolicy, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:      client,
		topicFormat: topicFormat,
		policy:      policy,
		logger:      logger,
	}
}

// Publish 发布一条遥测
func (p *MQTTPublisher) Publish(ctx context.Context, ev *models.TelemetryEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}
	topic := fmt.Sprintf(p.topicFormat, ev.TurbineNumber)

	return retry(ctx, p.policy, "mqtt", p.logger, func() error {
		return p.client.Publish(topic, p.client.QoS(), false, payload)
	})
}
