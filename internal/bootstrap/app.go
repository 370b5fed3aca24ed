// Package bootstrap assembles the application from configuration.  Every
// binary (API server, worker, CLI) builds the same dependency graph through
// NewApp so wiring decisions live in exactly one place.
package bootstrap

import (
	"context"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	appmatter "github.com/ipdocket/ipdocket/internal/application/matter"
	apprenewal "github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/domain/matter"
	neo4jdriver "github.com/ipdocket/ipdocket/internal/infrastructure/database/neo4j"
	neo4jrepos "github.com/ipdocket/ipdocket/internal/infrastructure/database/neo4j/repositories"
	"github.com/ipdocket/ipdocket/internal/infrastructure/database/postgres"
	pgrepos "github.com/ipdocket/ipdocket/internal/infrastructure/database/postgres/repositories"
	"github.com/ipdocket/ipdocket/internal/infrastructure/database/redis"
	"github.com/ipdocket/ipdocket/internal/infrastructure/messaging/kafka"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
	"github.com/ipdocket/ipdocket/internal/infrastructure/search/opensearch"
	"github.com/ipdocket/ipdocket/internal/infrastructure/storage/minio"
	"github.com/ipdocket/ipdocket/internal/interfaces/http/handlers"
)

// App is the fully wired application.  Optional backends (search, archive)
// may be nil when unreachable at startup; the owning features then degrade
// as their services document.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.Metrics

	Postgres *postgres.Connection
	Redis    *redis.Client
	Neo4j    *neo4jdriver.Driver
	Search   *opensearch.Client
	Producer *kafka.Producer

	Matters     *appmatter.Service
	Engine      *appdocket.Engine
	RuleAdmin   *appdocket.RuleAdminService
	Workflow    *apprenewal.WorkflowService
	Fees        *apprenewal.FeeService
	Export      *apprenewal.ExportService
	Reminders   *apprenewal.ReminderService
	Tasks       docket.TaskRepository
	Rules       docket.TaskRuleRepository
	Configs     docket.RenewalConfigRepository
	MatterRepo  matter.Repository
	EventRepo   matter.EventRepository
	LinkageRepo matter.LinkageRepository
}

// NewApp builds the dependency graph.  Postgres, Redis, Neo4j and Kafka are
// required; OpenSearch and MinIO are optional and log a warning when absent.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	metrics := prometheus.NewMetrics("ipdocket")

	pg, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rds, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		pg.Close()
		return nil, err
	}

	graph, err := neo4jdriver.NewDriver(cfg.Neo4j, logger)
	if err != nil {
		rds.Close()
		pg.Close()
		return nil, err
	}

	producer := kafka.NewProducer(cfg.Kafka, logger)

	db := pg.DB()
	matterRepo := pgrepos.NewMatterRepository(db, logger)
	eventRepo := pgrepos.NewEventRepository(db, logger)
	taskRepo := pgrepos.NewTaskRepository(db, logger)
	ruleRepo := pgrepos.NewTaskRuleRepository(db, logger)
	logRepo := pgrepos.NewTransitionLogRepository(db, logger)
	configRepo := pgrepos.NewRenewalConfigRepository(db, logger)
	linkageRepo := neo4jrepos.NewLinkageRepository(graph, logger)

	ruleCache := redis.NewRuleCache(rds, ruleRepo, cfg.Docket.RuleCacheTTL, logger)
	locker := redis.NewMatterLock(rds, cfg.Docket.MatterLockTTL, logger)

	engine := appdocket.NewEngine(
		matterRepo, eventRepo, linkageRepo, ruleCache, taskRepo, configRepo,
		matter.NewEventRegistry(), pg, locker, producer,
		appdocket.Options{
			MaxCascadeDepth:   cfg.Docket.MaxCascadeDepth,
			MaxRecurringTasks: cfg.Docket.MaxRecurringTasks,
		},
		logger, metrics,
	)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Postgres:    pg,
		Redis:       rds,
		Neo4j:       graph,
		Producer:    producer,
		Engine:      engine,
		Tasks:       taskRepo,
		Rules:       ruleRepo,
		Configs:     configRepo,
		MatterRepo:  matterRepo,
		EventRepo:   eventRepo,
		LinkageRepo: linkageRepo,
	}

	var indexer appmatter.Indexer
	search, err := opensearch.NewClient(cfg.OpenSearch, logger)
	if err != nil {
		logger.Warn("search unavailable, full-text matter search disabled", logging.Err(err))
	} else {
		mi := opensearch.NewMatterIndexer(search, logger)
		if err := mi.EnsureIndex(ctx); err != nil {
			logger.Warn("search index setup failed", logging.Err(err))
		}
		indexer = mi
		app.Search = search
	}

	app.Matters = appmatter.NewService(matterRepo, eventRepo, linkageRepo, engine, indexer, logger)
	app.RuleAdmin = appdocket.NewRuleAdminService(ruleRepo, logger)
	app.Workflow = apprenewal.NewWorkflowService(taskRepo, logRepo, pg, producer, logger, metrics)
	app.Fees = apprenewal.NewFeeService(taskRepo, matterRepo, configRepo, logger, metrics)
	app.Reminders = apprenewal.NewReminderService(taskRepo, app.Workflow, logger)

	archiver, err := minio.NewArchiver(cfg.MinIO, logger)
	if err != nil {
		logger.Warn("archive unavailable, renewal export disabled", logging.Err(err))
	} else {
		app.Export = apprenewal.NewExportService(taskRepo, matterRepo, app.Fees, archiver, logger)
	}

	return app, nil
}

// IntakeHandler adapts the matter service to the event intake consumer.
// Unknown caserefs are permanent failures; retrying cannot resolve them, so
// the error propagates and the consumer dead-letters the message.
func (a *App) IntakeHandler() kafka.Handler {
	return func(ctx context.Context, p kafka.EventReceivedPayload) error {
		_, err := a.Matters.RecordEventByCaseref(ctx, p.Caseref,
			matter.EventCode(p.Code), p.EventDate, p.Detail, p.AltCaseref)
		return err
	}
}

// HealthChecks returns the readiness probes for the wired backends.
func (a *App) HealthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"postgres": func(ctx context.Context) error { return a.Postgres.DB().PingContext(ctx) },
		"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx) },
	}
	if a.Search != nil {
		checks["opensearch"] = func(ctx context.Context) error { return a.Search.Ping(ctx) }
	}
	return checks
}

// Close releases every connection in reverse construction order.
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn("close kafka producer", logging.Err(err))
		}
	}
	if a.Neo4j != nil {
		if err := a.Neo4j.Close(context.Background()); err != nil {
			a.Logger.Warn("close neo4j driver", logging.Err(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis client", logging.Err(err))
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(); err != nil {
			a.Logger.Warn("close postgres connection", logging.Err(err))
		}
	}
}
