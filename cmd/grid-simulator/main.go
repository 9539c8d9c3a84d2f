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
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	flags := pflag.NewFlagSet("grid-simulator", pflag.ExitOnError)
	flags.IntVarP(&cfg.Turbine.Count, "turbines", "n", cfg.Turbine.Count, "number of turbines to simulate")
	flags.IntVar(&cfg.Monitor.EngineerCount, "engineers", cfg.Monitor.EngineerCount, "number of repair engineers")
	flags.StringVar(&cfg.Monitor.Addr, "addr", cfg.Monitor.Addr, "HTTP listen address for healthz and metrics (empty disables)")
	flags.StringVar(&cfg.Monitor.StorageBackend, "storage", cfg.Monitor.StorageBackend, "storage backend: file, redis or postgres")
	flags.StringVar(&cfg.Monitor.DataDir, "data-dir", cfg.Monitor.DataDir, "directory for file partitions")
	flags.DurationVar(&cfg.Turbine.UploadInterval, "interval", cfg.Turbine.UploadInterval, "telemetry upload interval")
	_ = flags.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "grid-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewSimulatorService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create grid simulator", zap.Error(err))
	}
	defer svc.Stop()

	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- svc.Start(ctx)
	}()

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

	log.Info("Grid simulator stopped")
}
