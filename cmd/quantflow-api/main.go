package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantflow/quantflow/pkg/cmd"
	"github.com/quantflow/quantflow/pkg/log"
	"github.com/quantflow/quantflow/pkg/monitor"
	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	app := &cli.Command{
		Name:                  "quantflow-api",
		Usage:                 "Serve the pipeline control plane over HTTP",
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
				Name:    "checkpoint-url",
				Usage:   "Checkpoint store URL (memory, file://dir, redis://..., postgres://...)",
				Value:   "memory",
				Sources: cli.EnvVars("CHECKPOINT_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for step execution",
				Sources: cli.EnvVars("QUANTFLOW_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing QuantFlow API")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewCheckpointStore(ctx, command.String("checkpoint-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to close checkpoint store", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "quantflow-api")
				if err != nil {
					return err
				}
			}

			registry := cmd.NewRegistry(logger)

			orch := orchestrator.New(orchestrator.Config{
				Logger:      logger,
				Registry:    registry,
				Checkpoints: store,
				Publisher:   eventBus,
				Tracer:      tracer,
			})

			mon := monitor.New(monitor.Config{
				Logger:     logger,
				Source:     orch,
				Remediator: orch.Recovery(),
			})
			defer mon.Close()

			api := NewAPI(logger, orch, mon, registry, store)

			return api.Start(command.Int("port"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
