package transport

import (
	"context"
	"fmt"

	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// MQTTIngress 订阅 turbine/+/metrics，把遥测送入接入队列
type MQTTIngress struct {
	client MQTTClient
	filter string
	queue  Enqueuer
	logger *zap.Logger
}

// NewMQTTIngress filter 形如 "turbine/+/metrics"
func NewMQTTIngress(client MQTTClient, filter string, queue Enqueuer, logger *zap.Logger) *MQTTIngress {
	return &MQTTIngress{
		client: client,
		filter: filter,
		queue:  queue,
		logger: logger,
	}
}

// Run 订阅直到 ctx 结束
//
// paho 串行回调处理函数，入队阻塞时会对 broker 形成反压。
func (i *MQTTIngress) Run(ctx context.Context) error {
	err := i.client.Subscribe(i.filter, i.client.QoS(), func(topic string, payload []byte) error {
		ev, err := models.ParseTelemetryEvent(payload)
		if err != nil {
			return fmt.Errorf("invalid telemetry on %s: %w", topic, err)
		}
		return i.queue.Enqueue(ctx, ev)
	})
	if err != nil {
		return err
	}
	i.logger.Info("MQTT telemetry ingress started", zap.String("filter", i.filter))

	<-ctx.Done()
	if err := i.client.Unsubscribe(i.filter); err != nil {
		i.logger.Warn("Failed to unsubscribe telemetry", zap.Error(err))
	}
	return nil
}
