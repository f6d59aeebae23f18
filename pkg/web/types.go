package web

import (
	"time"

	"github.com/quantflow/quantflow/pkg/models"
)

// StartExecutionRequest describes a new pipeline run. Exactly one of
// TemplateID and Steps must be set.
type StartExecutionRequest struct {
	TemplateID  string         `json:"template_id,omitempty"`
	Steps       []StepRequest  `json:"steps,omitempty"       validate:"omitempty,dive"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Resumable   bool           `json:"resumable"`
	Parallelism int            `json:"parallelism,omitempty" validate:"min=0,max=64"`

	// PollInterval overrides the monitor sampling cadence for this run,
	// in nanoseconds as marshalled by time.Duration.
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// StepRequest is one inline step definition.
type StepRequest struct {
	ID           string         `json:"id"   validate:"required,min=1"`
	Name         string         `json:"name" validate:"required,min=1"`
	Type         string         `json:"type" validate:"required,min=1"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Optional     bool           `json:"optional,omitempty"`
}

func (r *StartExecutionRequest) executionConfig() models.ExecutionConfig {
	var steps []*models.Step

	for _, s := range r.Steps {
		steps = append(steps, &models.Step{
			ID:           s.ID,
			Name:         s.Name,
			Type:         s.Type,
			Parameters:   s.Parameters,
			Dependencies: s.Dependencies,
			Optional:     s.Optional,
		})
	}

	return models.ExecutionConfig{
		TemplateID:   r.TemplateID,
		Steps:        steps,
		Parameters:   r.Parameters,
		Resumable:    r.Resumable,
		Parallelism:  r.Parallelism,
		PollInterval: r.PollInterval,
	}
}

// ControlRequest carries an optional operator-supplied reason for pause and
// cancel endpoints.
type ControlRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TemplateResponse summarizes a registered pipeline template.
type TemplateResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StepCount   int    `json:"step_count"`
}
