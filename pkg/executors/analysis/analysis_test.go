package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

func TestAnalysisProducesSignals(t *testing.T) {
	factory := NewFactory()
	executor, err := factory.Create()
	require.NoError(t, err)

	step := &models.Step{
		ID:         "analysis",
		Type:       "analysis",
		Parameters: map[string]any{"symbol": "ETHUSD", "lookback_days": 14.0},
	}

	result, err := executor.Execute(context.Background(), step, models.ExecutionContext{ExecutionID: "exec-1"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "ETHUSD", result.Data["symbol"])
	assert.Contains(t, []any{"bullish", "bearish", "sideways"}, result.Data["trend"])
	assert.Greater(t, result.Metrics["volatility"], 0.0)
}

func TestAnalysisDeterministicPerSymbol(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{ID: "analysis", Type: "analysis", Parameters: map[string]any{"symbol": "BTCUSD"}}

	first, err := executor.Execute(context.Background(), step, models.ExecutionContext{})
	require.NoError(t, err)

	second, err := executor.Execute(context.Background(), step, models.ExecutionContext{})
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)
}

func TestAnalysisFallsBackToExecutionParameters(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{ID: "analysis", Type: "analysis"}

	result, err := executor.Execute(context.Background(), step, models.ExecutionContext{
		Parameters: map[string]any{"symbol": "SOLUSD"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SOLUSD", result.Data["symbol"])
}
