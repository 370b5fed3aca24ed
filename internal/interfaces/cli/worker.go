package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipdocket/ipdocket/internal/bootstrap"
	"github.com/ipdocket/ipdocket/internal/infrastructure/messaging/kafka"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

func newWorkerCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the event intake worker",
		Long:  "The worker consumes lifecycle events from the intake topic, resolves\ncaserefs and feeds each event through the rule engine.  Messages that\ncannot be processed move to the dead-letter topic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Worker, app.IntakeHandler(), logger)
			defer func() {
				if err := consumer.Close(); err != nil {
					logger.Warn("close consumer", logging.Err(err))
				}
			}()

			logger.Info("intake worker started",
				logging.String("group", cfg.Kafka.GroupID),
				logging.Int("concurrency", cfg.Worker.Concurrency))
			return consumer.Run(ctx)
		},
	}
}
