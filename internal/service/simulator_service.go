package service

import (
	"context"

	"smartgrid-monitor/internal/config"
	"smartgrid-monitor/internal/dispatcher"
	"smartgrid-monitor/internal/ingress"
	"smartgrid-monitor/internal/monitor"
	"smartgrid-monitor/internal/transport"
	"smartgrid-monitor/internal/turbine"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SimulatorService grid-simulator：风机组与监控端在同一进程内，经内存队列连接
//
// 维修完成直接投递到风机注册表，维修时长取自每台风机自身的配置。
type SimulatorService struct {
	config    *config.Config
	logger    *zap.Logger
	resources *resources

	queue      *ingress.Queue
	fleet      *turbine.Fleet
	monitor    *monitor.Monitor
	dispatcher *dispatcher.Dispatcher
	server     *transport.Server
}

// NewSimulatorService 创建单进程模拟；cfg.Monitor.Addr 为空时不启动 HTTP 服务
func NewSimulatorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*SimulatorService, error) {
	res := newResources(cfg, logger)

	store, err := res.openStore(ctx)
	if err != nil {
		res.close()
		return nil, err
	}

	fleet, err := turbine.NewFleet(turbine.NewProfiles(cfg.Turbine.Count, profileBounds(cfg), newRand()), nil, logger.Named("turbine"))
	if err != nil {
		res.close()
		return nil, err
	}

	registry := fleet.Registry()
	queue := ingress.NewQueue(cfg.Monitor.QueueCapacity)
	disp := dispatcher.New(
		cfg.Monitor.EngineerCount,
		registry,
		dispatcher.FromResolver(registry, dispatcher.RandomDuration(cfg.Repair.MinDuration, cfg.Repair.MaxDuration, newRand())),
		logger.Named("dispatcher"),
	)

	s := &SimulatorService{
		config:     cfg,
		logger:     logger,
		resources:  res,
		queue:      queue,
		fleet:      fleet,
		monitor:    monitor.New(queue, store, disp, logger.Named("monitor")),
		dispatcher: disp,
	}
	if cfg.Monitor.Addr != "" {
		handler := transport.NewIngressHandler(queue, cfg.Monitor.EnqueueTimeout, logger)
		s.server = transport.NewServer(cfg.Monitor.Addr, transport.NewRouter(handler, logger), logger)
	}
	return s, nil
}

// Dispatcher 维修调度器
func (s *SimulatorService) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// Start 启动全部组件，阻塞到 ctx 结束
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting grid simulator",
		zap.Int("turbines", len(s.fleet.Devices())),
		zap.Int("engineers", s.config.Monitor.EngineerCount),
		zap.String("storage_backend", s.config.Monitor.StorageBackend),
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.server != nil {
		g.Go(func() error { return s.server.Run(gctx) })
	}
	g.Go(func() error { return s.monitor.Run(gctx) })
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.fleet.Run(gctx, s.queue) })
	return g.Wait()
}

// Stop 释放外部连接
func (s *SimulatorService) Stop() error {
	s.logger.Info("Stopping grid simulator")
	s.resources.close()
	return nil
}
