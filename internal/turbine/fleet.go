package turbine

import (
	"context"
	"errors"
	"fmt"

	"smartgrid-monitor/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fleet 一组风机，每台在独立的 goroutine 中运行；单台故障只影响自己
type Fleet struct {
	devices  []*Device
	registry *Registry
	logger   *zap.Logger
}

// NewFleet 按配置创建风机组；registry 为 nil 时内部新建
func NewFleet(configs []Config, registry *Registry, logger *zap.Logger) (*Fleet, error) {
	if registry == nil {
		registry = NewRegistry()
	}

	seen := make(map[int]struct{}, len(configs))
	devices := make([]*Device, 0, len(configs))
	for _, cfg := range configs {
		if _, ok := seen[cfg.TurbineNumber]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTurbine, cfg.TurbineNumber)
		}
		seen[cfg.TurbineNumber] = struct{}{}

		d, err := NewDevice(cfg, logger)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	return &Fleet{
		devices:  devices,
		registry: registry,
		logger:   logger,
	}, nil
}

// Devices 风机列表
func (f *Fleet) Devices() []*Device {
	return f.devices
}

// Registry 风机注册表
func (f *Fleet) Registry() *Registry {
	return f.registry
}

// Run 运行全部风机直到 ctx 结束
//
// 单台风机故障被记录后隔离，不会取消其它风机；Run 仅在所有风机都退出后返回。
func (f *Fleet) Run(ctx context.Context, publisher Publisher) error {
	for i, d := range f.devices {
		if err := f.registry.Register(d); err != nil {
			for _, registered := range f.devices[:i] {
				f.registry.Unregister(registered)
			}
			return err
		}
	}

	var g errgroup.Group
	for _, d := range f.devices {
		g.Go(func() error {
			defer f.registry.Unregister(d)

			err := d.Run(ctx, publisher)
			if err != nil {
				if errors.Is(err, ErrDeviceFault) {
					metrics.RecordDeviceFault()
				}
				f.logger.Error("Turbine stopped with fault",
					zap.Int("turbine_number", d.Number()),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	_ = g.Wait()
	f.logger.Info("Turbine fleet stopped", zap.Int("turbines", len(f.devices)))
	return nil
}
