package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/okrun/caseflow/pkg/cmd"
	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/integration"
	"github.com/okrun/caseflow/pkg/log"
	"github.com/okrun/caseflow/pkg/otelhelper"
)

const defaultPort = 9080

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "caseflow-api",
		Usage:                 "Register workflow definitions and drive approval instances",
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
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Caseflow API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-api", logger)

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

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "caseflow-api")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracing", "error", err)
				} else {
					orchestrator.WithTracer(tracer)
				}
			}

			api := NewAPI(logger, orchestrator, persistence)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
