// Package monitor 监控循环：遥测的唯一消费者，负责持久化、记录最近状态并判定是否派发维修。
package monitor

import (
	"context"

	"smartgrid-monitor/internal/metrics"
	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

// Source 遥测来源（接入队列）
type Source interface {
	Dequeue(ctx context.Context) (models.TelemetryEvent, error)
}

// Store 遥测存储
type Store interface {
	Append(ctx context.Context, ev *models.TelemetryEvent) error
	Backend() string
}

// Dispatcher 维修调度
type Dispatcher interface {
	Dispatch(ctx context.Context, turbine int) (models.RepairTicket, error)
}

// ShouldDispatch 派发规则：本次为 broken，且此前没有记录或上次为 ok
func ShouldDispatch(prev *models.TelemetryEvent, curr models.TelemetryEvent) bool {
	if curr.Status != models.StatusBroken {
		return false
	}
	return prev == nil || prev.Status == models.StatusHealthy
}

// Monitor 监控循环
//
// last 只由 Run 所在的 goroutine 读写。
type Monitor struct {
	source     Source
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger

	last map[int]models.TelemetryEvent
}

// New 创建监控循环
func New(source Source, store Store, dispatcher Dispatcher, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:     source,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		last:       make(map[int]models.TelemetryEvent),
	}
}

// Run 逐条处理遥测直到 ctx 结束
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor started", zap.String("storage_backend", m.store.Backend()))

	for {
		ev, err := m.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.logger.Info("Monitor stopped", zap.Int("turbines_seen", len(m.last)))
				return nil
			}
			return err
		}
		m.process(ctx, ev)
	}
}

// process 持久化 → 判定 → 更新最近状态 → 派发
func (m *Monitor) process(ctx context.Context, ev models.TelemetryEvent) {
	metrics.RecordTelemetryEvent(string(ev.Status))

	if err := m.store.Append(ctx, &ev); err != nil {
		metrics.RecordPersistenceFailure(m.store.Backend())
		m.logger.Error("Failed to persist telemetry",
			zap.Int("turbine_number", ev.TurbineNumber),
			zap.String("backend", m.store.Backend()),
			zap.Error(err),
		)
	}

	var prev *models.TelemetryEvent
	if p, ok := m.last[ev.TurbineNumber]; ok {
		prev = &p
	}
	dispatch := ShouldDispatch(prev, ev)
	m.last[ev.TurbineNumber] = ev

	if !dispatch {
		return
	}

	m.logger.Warn("Turbine reported broken",
		zap.Int("turbine_number", ev.TurbineNumber),
		zap.Float64("timestamp", ev.Timestamp),
	)
	if _, err := m.dispatcher.Dispatch(ctx, ev.TurbineNumber); err != nil {
		m.logger.Error("Failed to dispatch repair",
			zap.Int("turbine_number", ev.TurbineNumber),
			zap.Error(err),
		)
	}
}
