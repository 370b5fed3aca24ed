// Command worker consumes lifecycle events from the intake topic and feeds
// them through the rule engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ipdocket/ipdocket/internal/bootstrap"
	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/messaging/kafka"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: using default configuration: %v\n", err)
		cfg = config.NewDefaultConfig()
	}

	logCfg := logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if cfg.Log.Output != "" {
		logCfg.OutputPaths = []string{cfg.Log.Output}
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", logging.Err(err))
	}
	defer app.Close()

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Worker, app.IntakeHandler(), logger)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("close consumer", logging.Err(err))
		}
	}()

	logger.Info("intake worker started", logging.String("group", cfg.Kafka.GroupID))
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("worker failed", logging.Err(err))
	}
}
