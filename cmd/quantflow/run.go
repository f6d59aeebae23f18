package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantflow/quantflow/pkg/cmd"
	"github.com/quantflow/quantflow/pkg/log"
	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/monitor"
	"github.com/quantflow/quantflow/pkg/orchestrator"
	"github.com/quantflow/quantflow/pkg/otelhelper"
	"github.com/quantflow/quantflow/pkg/schedule"
)

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "template",
			Aliases: []string{"t"},
			Usage:   "Pipeline template id (see quantflow templates)",
		},
		&cli.StringFlag{
			Name:  "steps-file",
			Usage: "Path to a JSON file with an inline step list",
		},
		&cli.StringSliceFlag{
			Name:    "param",
			Aliases: []string{"P"},
			Usage:   "Execution parameter as key=value, repeatable",
		},
		&cli.IntFlag{
			Name:  "parallelism",
			Usage: "Maximum steps dispatched per batch",
		},
		&cli.BoolFlag{
			Name:  "resumable",
			Usage: "Checkpoint after every batch so the run can be restored",
		},
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "Health sampling cadence for this run (default 5s)",
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
	}
}

func RunCommand() *cli.Command {
	flags := pipelineFlags()
	flags = append(flags, &cli.StringFlag{
		Name:  "resume-from",
		Usage: "Execution id to restore from its latest checkpoint",
	})

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a pipeline and wait for it to finish",
		Flags:   flags,
		Action:  runPipeline,
	}
}

func ScheduleCommand() *cli.Command {
	flags := pipelineFlags()
	flags = append(flags, &cli.StringFlag{
		Name:     "cron",
		Usage:    "Cron expression or descriptor such as @hourly",
		Required: true,
	})

	return &cli.Command{
		Name:    "schedule",
		Aliases: []string{"s"},
		Usage:   "Run a pipeline on a cron schedule until interrupted",
		Flags:   flags,
		Action:  schedulePipeline,
	}
}

type pipelineStack struct {
	orchestrator *orchestrator.Orchestrator
	monitor      *monitor.Monitor
	close        func()
}

func buildStack(ctx context.Context, command *cli.Command) (*pipelineStack, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("quantflow")

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

	store, err := cmd.NewCheckpointStore(ctx, command.String("checkpoint-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "quantflow")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Logger:      logger,
		Registry:    cmd.NewRegistry(logger),
		Checkpoints: store,
		Publisher:   eventBus,
		Tracer:      tracer,
	})

	mon := monitor.New(monitor.Config{
		Logger:     logger,
		Source:     orch,
		Remediator: orch.Recovery(),
	})

	closeAll := func() {
		mon.Close()

		if err := store.Close(context.Background()); err != nil {
			logger.Error("Failed to close checkpoint store", "error", err)
		}

		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}

	return &pipelineStack{orchestrator: orch, monitor: mon, close: closeAll}, nil
}

func executionConfig(command *cli.Command) (models.ExecutionConfig, error) {
	cfg := models.ExecutionConfig{
		TemplateID:   command.String("template"),
		Parameters:   parseParams(command.StringSlice("param")),
		Resumable:    command.Bool("resumable"),
		Parallelism:  command.Int("parallelism"),
		PollInterval: command.Duration("poll-interval"),
	}

	if path := command.String("steps-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read steps file: %w", err)
		}

		if err := json.Unmarshal(data, &cfg.Steps); err != nil {
			return cfg, fmt.Errorf("failed to parse steps file: %w", err)
		}
	}

	return cfg, nil
}

func parseParams(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}

	params := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		params[key] = value
	}

	return params
}

func runPipeline(ctx context.Context, command *cli.Command) error {
	stack, err := buildStack(ctx, command)
	if err != nil {
		return err
	}
	defer stack.close()

	cfg, err := executionConfig(command)
	if err != nil {
		return err
	}

	logger := log.WithModule("quantflow")

	var execution *models.Execution

	if resumeID := command.String("resume-from"); resumeID != "" {
		execution, err = stack.orchestrator.Restore(ctx, resumeID, cfg)
	} else {
		execution, err = stack.orchestrator.Execute(ctx, cfg)
	}

	if err != nil {
		return err
	}

	interval, err := stack.orchestrator.PollInterval(execution.ID)
	if err != nil {
		return err
	}

	stack.monitor.WatchEvery(ctx, execution.ID, interval)

	final, err := stack.orchestrator.Wait(ctx, execution.ID)
	if err != nil {
		return err
	}

	logger.Info("Execution finished",
		"execution_id", final.ID,
		"status", final.Status,
		"progress", final.Progress(),
	)

	if final.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("execution %s ended with status %s", final.ID, final.Status)
	}

	return nil
}

func schedulePipeline(ctx context.Context, command *cli.Command) error {
	stack, err := buildStack(ctx, command)
	if err != nil {
		return err
	}
	defer stack.close()

	cfg, err := executionConfig(command)
	if err != nil {
		return err
	}

	logger := log.WithModule("quantflow")

	scheduler := schedule.New(logger, stack.orchestrator)
	if err := scheduler.Add("cli", command.String("cron"), cfg); err != nil {
		return err
	}

	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Scheduler started", "cron", command.String("cron"), "template_id", cfg.TemplateID)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-signalCtx.Done()

	logger.Info("Shutting down scheduler")

	return nil
}
