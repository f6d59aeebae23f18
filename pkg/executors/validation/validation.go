// Package validation implements the out-of-sample validation step: it holds
// the strategy's backtested performance against a minimum acceptance bar.
package validation

import (
	"context"
	"fmt"

	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/registry"
)

// Acceptance thresholds applied when the step parameters leave them unset.
const (
	defaultMinSharpe   = 0.5
	defaultMaxDrawdown = 0.3
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) ID() string   { return "validation" }
func (f *Factory) Name() string { return "Strategy Validation" }

func (f *Factory) Description() string {
	return "Checks backtested performance against out-of-sample acceptance thresholds."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"min_sharpe":   map[string]any{"type": "number"},
			"max_drawdown": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"timeout":      map[string]any{},
		},
		"additionalProperties": true,
	}
}

func (f *Factory) Create() (registry.Executor, error) {
	return &Executor{}, nil
}

type Executor struct{}

func (e *Executor) Execute(ctx context.Context, step *models.Step, ectx models.ExecutionContext) (*models.StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minSharpe := numberParam(step.Parameters, "min_sharpe", defaultMinSharpe)
	maxDrawdown := numberParam(step.Parameters, "max_drawdown", defaultMaxDrawdown)

	upstream, ok := ectx.StepResults["backtest"]
	if !ok {
		upstream = ectx.StepResults["analysis"]
	}

	if upstream == nil || upstream.Metrics == nil {
		return nil, models.NewStructuredError(models.ErrorCodeValidation,
			"no upstream metrics available to validate", false).
			WithSuggestions("add a backtest or analysis step before validation")
	}

	sharpe := upstream.Metrics["sharpe"]
	drawdown := upstream.Metrics["max_drawdown"]

	var failures []string

	if sharpe < minSharpe {
		failures = append(failures, fmt.Sprintf("sharpe %.2f below minimum %.2f", sharpe, minSharpe))
	}

	if drawdown > maxDrawdown {
		failures = append(failures, fmt.Sprintf("max drawdown %.2f above limit %.2f", drawdown, maxDrawdown))
	}

	if len(failures) > 0 {
		return &models.StepResult{
			Success:     false,
			Diagnostics: failures,
			Metrics: map[string]float64{
				"sharpe":       sharpe,
				"max_drawdown": drawdown,
			},
		}, nil
	}

	return &models.StepResult{
		Success: true,
		Data: map[string]any{
			"passed": true,
		},
		Metrics: map[string]float64{
			"sharpe":       sharpe,
			"max_drawdown": drawdown,
		},
		Diagnostics: []string{
			fmt.Sprintf("validation passed: sharpe %.2f, drawdown %.2f", sharpe, drawdown),
		},
	}, nil
}

func numberParam(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
