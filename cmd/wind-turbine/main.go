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

	flags := pflag.NewFlagSet("wind-turbine", pflag.ExitOnError)
	flags.IntVarP(&cfg.Turbine.Count, "turbines", "n", cfg.Turbine.Count, "number of turbines to simulate")
	flags.StringVar(&cfg.Turbine.MonitorURL, "monitor-url", cfg.Turbine.MonitorURL, "grid monitor base URL")
	flags.StringVar(&cfg.Turbine.Transport, "transport", cfg.Turbine.Transport, "telemetry transport: http, mqtt or redis")
	flags.DurationVar(&cfg.Turbine.UploadInterval, "interval", cfg.Turbine.UploadInterval, "telemetry upload interval")
	flags.StringVar(&cfg.Repair.Notifier, "repair-notifier", cfg.Repair.Notifier, "repair notices over redis or mqtt")
	_ = flags.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wind-turbine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := service.NewTurbineService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create wind turbines", zap.Error(err))
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

	log.Info("Wind turbines stopped")
}
