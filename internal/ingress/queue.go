// Package ingress 实现遥测接入队列：多生产者、单消费者、FIFO，满时对生产者反压。
package ingress

import (
	"context"

	"smartgrid-monitor/internal/metrics"
	"smartgrid-monitor/internal/models"
)

// DefaultCapacity 默认队列容量
const DefaultCapacity = 1024

// Queue 接入队列
type Queue struct {
	events chan models.TelemetryEvent
}

// NewQueue 创建容量为 capacity 的接入队列
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{events: make(chan models.TelemetryEvent, capacity)}
}

// Enqueue 入队；队列已满时阻塞直到有空位或 ctx 结束
func (q *Queue) Enqueue(ctx context.Context, ev *models.TelemetryEvent) error {
	select {
	case q.events <- *ev:
		metrics.SetQueueDepth(len(q.events))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish 让队列本身可作为进程内的遥测发布端
func (q *Queue) Publish(ctx context.Context, ev *models.TelemetryEvent) error {
	return q.Enqueue(ctx, ev)
}

// Dequeue 出队；队列为空时阻塞直到有事件或 ctx 结束
func (q *Queue) Dequeue(ctx context.Context) (models.TelemetryEvent, error) {
	select {
	case ev := <-q.events:
		metrics.SetQueueDepth(len(q.events))
		return ev, nil
	case <-ctx.Done():
		return models.TelemetryEvent{}, ctx.Err()
	}
}

// Len 当前排队的事件数
func (q *Queue) Len() int {
	return len(q.events)
}

// Cap 队列容量
func (q *Queue) Cap() int {
	return cap(q.events)
}
