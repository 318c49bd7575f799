// Package main provides the caseflow scheduler: durable timer polling,
// deadline sweeps and cron trigger schedules.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/okrun/caseflow/pkg/cmd"
	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/integration"
	"github.com/okrun/caseflow/pkg/log"
	"github.com/okrun/caseflow/pkg/scheduler"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "caseflow-scheduler",
		Usage:                 "Run timers, deadline sweeps and cron trigger schedules",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL (postgres://... or memory://)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Audit event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the notification stream",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "integration-endpoints",
				Usage:   "Comma separated service=baseURL pairs for external integrations",
				Sources: cli.EnvVars("INTEGRATION_ENDPOINTS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Durable timer poll interval",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
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

			logger.InfoContext(ctx, "Initializing Caseflow scheduler")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-scheduler", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			notifier := cmd.NewDispatcher(command.String("redis-url"), logger)

			defer func() {
				if err := notifier.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close notification dispatcher", "error", err)
				}
			}()

			gateway := integration.NewRetryingGateway(
				integration.NewHTTPGateway(cmd.ParseEndpoints(command.String("integration-endpoints")), logger),
				logger,
			)

			orchestrator := engine.NewEngine(persistence, eventBus, notifier, gateway, logger)

			pollInterval := command.Duration("poll-interval")
			runner := scheduler.NewScheduler(persistence, orchestrator, logger).
				WithIntervals(pollInterval, 30*time.Second, time.Minute)

			runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner.Start(runCtx)
			<-runCtx.Done()
			runner.Stop(context.Background())

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
