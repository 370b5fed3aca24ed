// Command apiserver runs the docketing HTTP API.  It is the container
// entrypoint; the equivalent `ipdocket serve` exists for operators.
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
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	httpapi "github.com/ipdocket/ipdocket/internal/interfaces/http"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: using default configuration: %v\n", err)
		cfg = config.NewDefaultConfig()
	}
	if *port > 0 {
		cfg.Server.Port = *port
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

	router := httpapi.NewRouter(httpapi.Deps{
		Matters:   app.Matters,
		Rules:     app.RuleAdmin,
		Workflow:  app.Workflow,
		Fees:      app.Fees,
		Export:    app.Export,
		Reminders: app.Reminders,
		Tasks:     app.Tasks,
		Configs:   app.Configs,
		Checks:    app.HealthChecks(),
		Logger:    logger,
		Metrics:   app.Metrics,
		Mode:      cfg.Server.Mode,
	})

	if err := httpapi.NewServer(cfg.Server, router, logger).Run(ctx); err != nil {
		logger.Fatal("server failed", logging.Err(err))
	}
}
