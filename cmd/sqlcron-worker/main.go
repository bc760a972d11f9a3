package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/sqlcron/sqlcron/pkg/artifact"
	"github.com/sqlcron/sqlcron/pkg/cmd"
	"github.com/sqlcron/sqlcron/pkg/log"
	"github.com/sqlcron/sqlcron/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "sqlcron-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute fired orders and finalize their results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "instances-path",
				Usage:    "Path to the JSON file mapping instance names to DSNs",
				Required: true,
				Sources:  cli.EnvVars("INSTANCES_PATH"),
			},
			&cli.StringFlag{
				Name:    "artifact-dir",
				Usage:   "Directory query result files are written to",
				Value:   "./artifacts",
				Sources: cli.EnvVars("ARTIFACT_DIR"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the notification queue (log-only when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "notify-queue",
				Usage:   "Redis list notifications are pushed to",
				Value:   "sqlcron:notifications",
				Sources: cli.EnvVars("NOTIFY_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export execution spans over OTLP (collector endpoint from OTEL_EXPORTER_OTLP_ENDPOINT)",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("sqlcron-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing sqlcron worker")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "sqlcron-worker")
				if err != nil {
					logger.WarnContext(ctx, "Failed to set up tracing, continuing without it", "error", err)
				}
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			engines := cmd.NewEngineResolver(ctx, logger, command.String("instances-path"))

			artifacts, err := artifact.NewWriter(command.String("artifact-dir"))
			if err != nil {
				return err
			}

			dispatcher := cmd.NewDispatcher(ctx, logger, command.String("redis-url"), command.String("notify-queue"))

			worker := NewWorkerManager(workerID, logger, store, engines, artifacts, dispatcher, eventBus)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
