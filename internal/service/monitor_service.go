package service

import (
	"context"
	"fmt"

	"smartgrid-monitor/internal/config"
	"smartgrid-monitor/internal/dispatcher"
	"smartgrid-monitor/internal/ingress"
	"smartgrid-monitor/internal/monitor"
	"smartgrid-monitor/internal/transport"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MonitorService grid-monitor：接入边界 + 监控循环 + 维修调度
type MonitorService struct {
	config    *config.Config
	logger    *zap.Logger
	resources *resources

	queue      *ingress.Queue
	monitor    *monitor.Monitor
	dispatcher *dispatcher.Dispatcher
	server     *transport.Server
	consumers  []func(context.Context) error
}

// NewMonitorService 创建监控服务
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	res := newResources(cfg, logger)

	store, err := res.openStore(ctx)
	if err != nil {
		res.close()
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Monitor.StorageBackend, err)
	}

	notifier, err := newRepairNotifier(ctx, cfg, res)
	if err != nil {
		res.close()
		return nil, err
	}

	queue := ingress.NewQueue(cfg.Monitor.QueueCapacity)
	disp := dispatcher.New(
		cfg.Monitor.EngineerCount,
		notifier,
		dispatcher.RandomDuration(cfg.Repair.MinDuration, cfg.Repair.MaxDuration, newRand()),
		logger.Named("dispatcher"),
	)

	handler := transport.NewIngressHandler(queue, cfg.Monitor.EnqueueTimeout, logger)
	s := &MonitorService{
		config:     cfg,
		logger:     logger,
		resources:  res,
		queue:      queue,
		monitor:    monitor.New(queue, store, disp, logger.Named("monitor")),
		dispatcher: disp,
		server:     transport.NewServer(cfg.Monitor.Addr, transport.NewRouter(handler, logger), logger),
	}

	if cfg.Monitor.Ingress.MQTT {
		client, err := res.mqttClient("monitor")
		if err != nil {
			res.close()
			return nil, err
		}
		s.consumers = append(s.consumers, transport.NewMQTTIngress(client, cfg.Topics.MetricsFilter, queue, logger).Run)
	}
	if cfg.Monitor.Ingress.Redis {
		client, err := res.redisClient(ctx)
		if err != nil {
			res.close()
			return nil, err
		}
		s.consumers = append(s.consumers, transport.NewRedisStreamIngress(
			client, cfg.Streams.Telemetry, cfg.Streams.ConsumerGroup, cfg.Streams.ConsumerName, queue, logger,
		).Run)
	}

	return s, nil
}

// newRepairNotifier 跨进程部署时，维修完成经 Redis pub/sub 或 MQTT 通知风机进程
func newRepairNotifier(ctx context.Context, cfg *config.Config, res *resources) (dispatcher.RepairNotifier, error) {
	switch cfg.Repair.Notifier {
	case config.NotifierMQTT:
		client, err := res.mqttClient("monitor")
		if err != nil {
			return nil, err
		}
		return transport.NewMQTTRepairNotifier(client, cfg.Topics.Repairs), nil
	default:
		client, err := res.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return transport.NewRedisRepairNotifier(client, cfg.Streams.RepairChannel), nil
	}
}

// Start 启动服务，阻塞到 ctx 结束或任一组件失败
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting grid monitor",
		zap.String("addr", s.config.Monitor.Addr),
		zap.Int("engineers", s.config.Monitor.EngineerCount),
		zap.String("storage_backend", s.config.Monitor.StorageBackend),
		zap.String("repair_notifier", s.config.Repair.Notifier),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.server.Run(gctx) })
	g.Go(func() error { return s.monitor.Run(gctx) })
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	for _, run := range s.consumers {
		run := run
		g.Go(func() error { return run(gctx) })
	}
	return g.Wait()
}

// Stop 释放外部连接
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping grid monitor")
	s.resources.close()
	return nil
}
