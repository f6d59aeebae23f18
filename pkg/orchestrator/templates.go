package orchestrator

import "github.com/quantflow/quantflow/pkg/models"

// Template is a pre-declared pipeline shape. Build returns fresh step
// instances so concurrent executions never share step state.
type Template struct {
	ID          string
	Name        string
	Description string
	Build       func() []*models.Step
}

// BuiltinTemplates returns the pipeline shapes shipped with the engine.
func BuiltinTemplates() map[string]Template {
	templates := []Template{
		{
			ID:          "full_backtest",
			Name:        "Full Backtest",
			Description: "Market analysis, backtest, parallel optimization and validation, final report.",
			Build: func() []*models.Step {
				return []*models.Step{
					{
						ID:     "analysis",
						Name:   "Market Analysis",
						Type:   "analysis",
						Status: models.StepStatusPending,
					},
					{
						ID:           "backtest",
						Name:         "Strategy Backtest",
						Type:         "backtest",
						Dependencies: []string{"analysis"},
						Status:       models.StepStatusPending,
					},
					{
						ID:           "optimization",
						Name:         "Parameter Optimization",
						Type:         "optimization",
						Dependencies: []string{"backtest"},
						Status:       models.StepStatusPending,
					},
					{
						ID:           "validation",
						Name:         "Out-of-Sample Validation",
						Type:         "validation",
						Dependencies: []string{"backtest"},
						Optional:     true,
						Status:       models.StepStatusPending,
					},
					{
						ID:           "report",
						Name:         "Performance Report",
						Type:         "report",
						Dependencies: []string{"optimization", "validation"},
						Status:       models.StepStatusPending,
					},
				}
			},
		},
		{
			ID:          "quick_validate",
			Name:        "Quick Validate",
			Description: "Market analysis followed by a validation pass, no optimization.",
			Build: func() []*models.Step {
				return []*models.Step{
					{
						ID:     "analysis",
						Name:   "Market Analysis",
						Type:   "analysis",
						Status: models.StepStatusPending,
					},
					{
						ID:           "validation",
						Name:         "Strategy Validation",
						Type:         "validation",
						Dependencies: []string{"analysis"},
						Status:       models.StepStatusPending,
					},
				}
			},
		},
	}

	byID := make(map[string]Template, len(templates))
	for _, t := range templates {
		byID[t.ID] = t
	}

	return byID
}
