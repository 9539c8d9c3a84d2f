package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smartgrid-monitor/common/logger"
	"smartgrid-monitor/internal/config"
	"smartgrid-monitor/internal/service"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 命令行参数覆盖环境变量
	flags := pflag.NewFlagSet("grid-monitor", pflag.ExitOnError)
	flags.StringVar(&cfg.Monitor.Addr, "addr", cfg.Monitor.Addr, "HTTP listen address")
	flags.IntVar(&cfg.Monitor.EngineerCount, "engineers", cfg.Monitor.EngineerCount, "number of repair engineers")
	flags.StringVar(&cfg.Monitor.StorageBackend, "storage", cfg.Monitor.StorageBackend, "storage backend: file, redis or postgres")
	flags.StringVar(&cfg.Monitor.DataDir, "data-dir", cfg.Monitor.DataDir, "directory for file partitions")
	flags.StringVar(&cfg.Repair.Notifier, "repair-notifier", cfg.Repair.Notifier, "repair notices over redis or mqtt")
	flags.BoolVar(&cfg.Monitor.Ingress.MQTT, "ingress-mqtt", cfg.Monitor.Ingress.MQTT, "also consume telemetry from MQTT")
	flags.BoolVar(&cfg.Monitor.Ingress.Redis, "ingress-redis", cfg.Monitor.Ingress.Redis, "also consume telemetry from the Redis stream")
	_ = flags.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 3. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "grid-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 4. 创建服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewMonitorService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create grid monitor", zap.Error(err))
	}
	defer svc.Stop()

	// 5. 启动服务
	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- svc.Start(ctx)
	}()

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-serviceErrChan
	case err := <-serviceErrChan:
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
	}

	log.Info("Grid monitor stopped")
}
