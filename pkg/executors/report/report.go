// Package report implements the final reporting step: it aggregates the
// results of every upstream step into a single performance summary.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/quantflow/quantflow/pkg/models"
	"github.com/quantflow/quantflow/pkg/registry"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) ID() string   { return "report" }
func (f *Factory) Name() string { return "Performance Report" }

func (f *Factory) Description() string {
	return "Aggregates upstream step results into a single performance summary artifact."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"format":  map[string]any{"type": "string", "enum": []any{"json", "html"}},
			"timeout": map[string]any{},
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

	format := "json"
	if v, ok := step.Parameters["format"].(string); ok && v != "" {
		format = v
	}

	sections := make(map[string]any, len(ectx.StepResults))
	combined := make(map[string]float64)

	ids := make([]string, 0, len(ectx.StepResults))
	for id := range ectx.StepResults {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		result := ectx.StepResults[id]
		sections[id] = result.Data

		for name, value := range result.Metrics {
			combined[id+"."+name] = value
		}
	}

	return &models.StepResult{
		Success: true,
		Data: map[string]any{
			"format":   format,
			"sections": sections,
		},
		Metrics: combined,
		Artifacts: []string{
			fmt.Sprintf("reports/%s/summary.%s", ectx.ExecutionID, format),
		},
		Diagnostics: []string{
			fmt.Sprintf("aggregated %d upstream results", len(ids)),
		},
	}, nil
}
