package service

import (
	"context"
	"fmt"
	"time"

	"smartgrid-monitor/internal/config"
	"smartgrid-monitor/internal/transport"
	"smartgrid-monitor/internal/turbine"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TurbineService wind-turbine：风机组向远端 grid-monitor 上报，并监听维修完成通知
type TurbineService struct {
	config    *config.Config
	logger    *zap.Logger
	resources *resources

	fleet     *turbine.Fleet
	publisher turbine.Publisher
	listener  func(context.Context) error
}

// NewTurbineService 创建风机服务
func NewTurbineService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*TurbineService, error) {
	res := newResources(cfg, logger)

	fleet, err := turbine.NewFleet(turbine.NewProfiles(cfg.Turbine.Count, profileBounds(cfg), newRand()), nil, logger.Named("turbine"))
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg, res, logger)
	if err != nil {
		res.close()
		return nil, err
	}

	listener, err := newRepairListener(ctx, cfg, res, fleet.Registry(), logger)
	if err != nil {
		res.close()
		return nil, err
	}

	return &TurbineService{
		config:    cfg,
		logger:    logger,
		resources: res,
		fleet:     fleet,
		publisher: publisher,
		listener:  listener,
	}, nil
}

func profileBounds(cfg *config.Config) turbine.ProfileBounds {
	return turbine.ProfileBounds{
		UploadInterval:  cfg.Turbine.UploadInterval,
		MinTimeToFail:   cfg.Turbine.MinTimeToFail,
		MaxTimeToFail:   cfg.Turbine.MaxTimeToFail,
		MinTimeToRepair: cfg.Repair.MinDuration,
		MaxTimeToRepair: cfg.Repair.MaxDuration,
	}
}

func newPublisher(ctx context.Context, cfg *config.Config, res *resources, logger *zap.Logger) (turbine.Publisher, error) {
	policy := transport.DefaultRetryPolicy()

	switch cfg.Turbine.Transport {
	case config.TransportMQTT:
		client, err := res.mqttClient("turbines")
		if err != nil {
			return nil, err
		}
		return transport.NewMQTTPublisher(client, cfg.Topics.Metrics, policy, logger), nil
	case config.TransportRedis:
		client, err := res.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return transport.NewRedisStreamPublisher(client, cfg.Streams.Telemetry, policy, logger), nil
	default:
		return transport.NewHTTPPublisher(cfg.Turbine.MonitorURL, cfg.Turbine.PublishTimeout, policy, logger), nil
	}
}

func newRepairListener(ctx context.Context, cfg *config.Config, res *resources, target transport.RepairTarget, logger *zap.Logger) (func(context.Context) error, error) {
	switch cfg.Repair.Notifier {
	case config.NotifierMQTT:
		client, err := res.mqttClient("turbines")
		if err != nil {
			return nil, err
		}
		return transport.NewMQTTRepairListener(client, cfg.Topics.RepairsFilter, target, logger, deliverTimeout(cfg)).Run, nil
	default:
		client, err := res.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("repair listener: %w", err)
		}
		return transport.NewRedisRepairListener(client, cfg.Streams.RepairPattern, target, logger, deliverTimeout(cfg)).Run, nil
	}
}

// Start 启动风机组与维修监听
func (s *TurbineService) Start(ctx context.Context) error {
	s.logger.Info("Starting wind turbines",
		zap.Int("turbines", len(s.fleet.Devices())),
		zap.String("transport", s.config.Turbine.Transport),
		zap.String("monitor_url", s.config.Turbine.MonitorURL),
	)
	for _, d := range s.fleet.Devices() {
		cfg := d.Config()
		s.logger.Info("Turbine profile",
			zap.Int("turbine_number", cfg.TurbineNumber),
			zap.Float64("wind_speed", cfg.WindSpeed),
			zap.Float64("power_output_in_kwh", cfg.PowerOutputInKWh),
			zap.Duration("time_to_fail", cfg.TimeToFail),
			zap.Duration("time_to_repair", cfg.TimeToRepair),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.listener(gctx) })
	g.Go(func() error { return s.fleet.Run(gctx, s.publisher) })
	return g.Wait()
}

// Stop 释放外部连接
func (s *TurbineService) Stop() error {
	s.logger.Info("Stopping wind turbines")
	s.resources.close()
	return nil
}

// deliverTimeout 故障风机最迟一个上报周期后开始等待维修完成信号
func deliverTimeout(cfg *config.Config) transport.ListenerOption {
	return transport.WithDeliverTimeout(2*cfg.Turbine.UploadInterval + time.Second)
}
