package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipdocket/ipdocket/internal/bootstrap"
	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	httpapi "github.com/ipdocket/ipdocket/internal/interfaces/http"
)

func newServeCmd(opts *RootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the docketing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if opts.ConfigPath != "" {
				config.Watch(opts.ConfigPath, func(updated *config.Config) {
					if ls, ok := logger.(logging.LevelSetter); ok {
						ls.SetLevel(updated.Log.Level)
						logger.Info("log level reloaded", logging.String("level", updated.Log.Level))
					}
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, logger)
			if err != nil {
				return err
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
			return httpapi.NewServer(cfg.Server, router, logger).Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides config)")
	return cmd
}
