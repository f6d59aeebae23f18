package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

func TestReportAggregatesUpstreamResults(t *testing.T) {
	executor := &Executor{}
	step := &models.Step{ID: "report", Type: "report", Parameters: map[string]any{"format": "html"}}

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		StepResults: map[string]*models.StepResult{
			"analysis": {Success: true, Metrics: map[string]float64{"volatility": 0.12}},
			"backtest": {Success: true, Metrics: map[string]float64{"sharpe": 1.1}},
		},
	}

	result, err := executor.Execute(context.Background(), step, ectx)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "html", result.Data["format"])
	assert.Equal(t, 0.12, result.Metrics["analysis.volatility"])
	assert.Equal(t, 1.1, result.Metrics["backtest.sharpe"])
	assert.Equal(t, []string{"reports/exec-1/summary.html"}, result.Artifacts)
}
