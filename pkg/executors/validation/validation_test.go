package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

func TestValidationPasses(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{ID: "validation", Type: "validation"}

	ectx := models.ExecutionContext{
		StepResults: map[string]*models.StepResult{
			"backtest": {Success: true, Metrics: map[string]float64{"sharpe": 1.4, "max_drawdown": 0.1}},
		},
	}

	result, err := executor.Execute(context.Background(), step, ectx)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestValidationFailsBelowThreshold(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{
		ID:         "validation",
		Type:       "validation",
		Parameters: map[string]any{"min_sharpe": 2.0},
	}

	ectx := models.ExecutionContext{
		StepResults: map[string]*models.StepResult{
			"backtest": {Success: true, Metrics: map[string]float64{"sharpe": 0.9, "max_drawdown": 0.1}},
		},
	}

	result, err := executor.Execute(context.Background(), step, ectx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestValidationWithoutUpstreamMetrics(t *testing.T) {
	executor := &Executor{}

	_, err := executor.Execute(context.Background(), &models.Step{ID: "validation", Type: "validation"}, models.ExecutionContext{})
	require.Error(t, err)

	serr := models.AsStructured(err)
	assert.Equal(t, models.ErrorCodeValidation, serr.Code)
	assert.False(t, serr.Recoverable)
}
