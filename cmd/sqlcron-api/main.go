package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/sqlcron/sqlcron/pkg/cmd"
	"github.com/sqlcron/sqlcron/pkg/groups"
	"github.com/sqlcron/sqlcron/pkg/log"
	"github.com/sqlcron/sqlcron/pkg/sysconfig"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "sqlcron-api",
		Usage:                 "Submit, review and control scheduled SQL workflow orders",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:     "groups-path",
				Usage:    "Path to the JSON file of resource groups",
				Required: true,
				Sources:  cli.EnvVars("GROUPS_PATH"),
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
			&cli.StringFlag{
				Name:    "review-policy",
				Usage:   "Automatic review policy (reject-on-error, reject-on-warning)",
				Value:   string(sysconfig.PolicyRejectOnError),
				Sources: cli.EnvVars("REVIEW_POLICY"),
			},
			&cli.StringFlag{
				Name:    "artifact-dir",
				Usage:   "Directory query result files are written to",
				Value:   "./artifacts",
				Sources: cli.EnvVars("ARTIFACT_DIR"),
			},
			&cli.BoolFlag{
				Name:    "enable-backup-switch",
				Usage:   "Let submitters toggle row backup themselves",
				Sources: cli.EnvVars("ENABLE_BACKUP_SWITCH"),
			},
			&cli.BoolFlag{
				Name:    "disable-star",
				Usage:   "Reject query orders containing SELECT *",
				Sources: cli.EnvVars("DISABLE_STAR"),
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

			logger.InfoContext(ctx, "Initializing sqlcron API")

			cfg := sysconfig.Config{
				ReviewPolicy:       sysconfig.ReviewPolicy(command.String("review-policy")),
				EnableBackupSwitch: command.Bool("enable-backup-switch"),
				DisableStar:        command.Bool("disable-star"),
				ArtifactDir:        command.String("artifact-dir"),
				NotifyQueue:        command.String("notify-queue"),
				PollInterval:       time.Minute,
			}

			config, err := sysconfig.NewService(cfg)
			if err != nil {
				return err
			}

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			engines := cmd.NewEngineResolver(ctx, logger, command.String("instances-path"))

			groupResolver, err := groups.LoadFromFile(command.String("groups-path"))
			if err != nil {
				return err
			}

			dispatcher := cmd.NewDispatcher(ctx, logger, command.String("redis-url"), cfg.NotifyQueue)

			api := NewAPI(logger, store, engines, groupResolver, config, dispatcher, eventBus)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
