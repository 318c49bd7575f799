// Package main provides the caseflow audit sink: it consumes workflow
// lifecycle events from the bus and writes them to the structured log.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/okrun/caseflow/pkg/cmd"
	"github.com/okrun/caseflow/pkg/events"
	"github.com/okrun/caseflow/pkg/log"
)

var auditedEvents = []events.EventType{
	events.DefinitionRegisteredEvent,
	events.InstanceStartedEvent,
	events.InstanceCompletedEvent,
	events.InstanceCancelledEvent,
	events.InstanceExpiredEvent,
	events.StepStartedEvent,
	events.StepCompletedEvent,
	events.StepRejectedEvent,
	events.StepEscalatedEvent,
	events.StepFailedEvent,
	events.DeadlineBreachedEvent,
}

func main() {
	logger := log.WithModule("audit")

	command := &cli.Command{
		Name:                  "caseflow-audit",
		Usage:                 "Consume and record workflow audit events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Audit event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
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

			logger.InfoContext(ctx, "Initializing Caseflow audit sink")

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-audit", logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			for _, eventType := range auditedEvents {
				record := recordEvent(logger, eventType)
				if err := eventBus.Handle(eventType, record); err != nil {
					return err
				}
			}

			runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := eventBus.Subscribe(runCtx); err != nil {
				return err
			}

			<-runCtx.Done()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func recordEvent(logger *slog.Logger, eventType events.EventType) func(ctx context.Context, event any) error {
	return func(ctx context.Context, event any) error {
		logger.InfoContext(ctx, "Audit event",
			"event_type", eventType,
			"event", event)

		return nil
	}
}
