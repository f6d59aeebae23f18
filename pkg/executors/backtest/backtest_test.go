package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

func TestBacktestUsesUpstreamVolatility(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{
		ID:         "backtest",
		Type:       "backtest",
		Parameters: map[string]any{"strategy": "mean_reversion", "initial_capital": 50_000.0},
	}

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		StepResults: map[string]*models.StepResult{
			"analysis": {Success: true, Metrics: map[string]float64{"volatility": 0.2}},
		},
	}

	result, err := executor.Execute(context.Background(), step, ectx)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.InDelta(t, result.Metrics["total_return"]/0.2, result.Metrics["sharpe"], 1e-9)
	assert.Len(t, result.Artifacts, 2)
	assert.Contains(t, result.Artifacts[0], "exec-1")
}

func TestBacktestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := &Executor{}
	_, err := executor.Execute(ctx, &models.Step{ID: "backtest", Type: "backtest"}, models.ExecutionContext{})
	assert.ErrorIs(t, err, context.Canceled)
}
