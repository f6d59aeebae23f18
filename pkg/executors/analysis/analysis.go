// Package analysis implements the market analysis step: it derives trend and
// volatility figures for a symbol that downstream steps consume.
package analysis

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/registry"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) ID() string   { return "analysis" }
func (f *Factory) Name() string { return "Market Analysis" }

func (f *Factory) Description() string {
	return "Analyzes recent market data for a symbol and derives trend and volatility signals."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol":        map[string]any{"type": "string"},
			"lookback_days": map[string]any{"type": "number", "minimum": 1},
			"timeout":       map[string]any{},
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

	symbol := stringParam(step.Parameters, "symbol", stringParam(ectx.Parameters, "symbol", "BTCUSD"))
	lookback := numberParam(step.Parameters, "lookback_days", 30)

	// Deterministic pseudo-signals derived from the symbol; the real market
	// data provider sits behind a remote API outside the engine.
	seed := hashSeed(symbol)
	volatility := 0.05 + float64(seed%40)/400
	momentum := -0.5 + float64((seed/7)%100)/100

	trend := "sideways"

	switch {
	case momentum > 0.15:
		trend = "bullish"
	case momentum < -0.15:
		trend = "bearish"
	}

	return &models.StepResult{
		Success: true,
		Data: map[string]any{
			"symbol":        symbol,
			"trend":         trend,
			"lookback_days": lookback,
		},
		Metrics: map[string]float64{
			"volatility": volatility,
			"momentum":   momentum,
		},
		Diagnostics: []string{
			fmt.Sprintf("analyzed %s over %.0f days: %s", symbol, lookback, trend),
		},
	}, nil
}

func hashSeed(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))

	return h.Sum64()
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}

	return fallback
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
