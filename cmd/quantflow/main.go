package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/quantflow/quantflow/pkg/log"
)

func main() {
	logger := log.WithModule("quantflow")

	app := &cli.Command{
		Name:                  "quantflow",
		Usage:                 "Run and schedule trading strategy pipelines",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			ScheduleCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
