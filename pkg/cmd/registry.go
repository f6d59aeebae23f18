// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/quantflow/quantflow/pkg/executors/analysis"
	"github.com/quantflow/quantflow/pkg/executors/backtest"
	"github.com/quantflow/quantflow/pkg/executors/optimization"
	"github.com/quantflow/quantflow/pkg/executors/report"
	"github.com/quantflow/quantflow/pkg/executors/validation"
	"github.com/quantflow/quantflow/pkg/registry"
)

// NewRegistry builds a registry with every native step executor registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(analysis.NewFactory())
	reg.Register(backtest.NewFactory())
	reg.Register(optimization.NewFactory())
	reg.Register(validation.NewFactory())
	reg.Register(report.NewFactory())

	return reg
}
