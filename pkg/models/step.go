// Package models defines the core domain models for strategy pipeline execution.
package models

import (
	"time"
)

// StepStatus represents the lifecycle state of a single pipeline step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// DefaultStepTimeout bounds a step execution when no timeout parameter is set.
const DefaultStepTimeout = 5 * time.Minute

// Step is one unit of work inside an execution. Dependencies reference other
// step IDs within the same execution; a step is dispatched only once every
// dependency has completed.
type Step struct {
	ID           string           `json:"id"            validate:"required"`
	Name         string           `json:"name"          validate:"required"`
	Type         string           `json:"type"          validate:"required"`
	Parameters   map[string]any   `json:"parameters,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty"`
	Optional     bool             `json:"optional,omitempty"`
	Status       StepStatus       `json:"status"`
	Progress     int              `json:"progress"`
	Skipped      bool             `json:"skipped,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
	Result       *StepResult      `json:"result,omitempty"`
	Error        *StructuredError `json:"error,omitempty"`
}

// StepResult is the structured outcome a step executor hands back.
type StepResult struct {
	Success     bool               `json:"success"`
	Data        map[string]any     `json:"data,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Artifacts   []string           `json:"artifacts,omitempty"`
	Diagnostics []string           `json:"diagnostics,omitempty"`
}

// Terminal reports whether the step reached a final state.
func (s *Step) Terminal() bool {
	return s.Status == StepStatusCompleted || s.Status == StepStatusFailed
}

// Timeout returns the per-step execution budget. The "timeout" parameter is
// read in seconds (JSON numbers) or as a duration string; the TIMEOUT_ERROR
// recovery strategy rewrites it between attempts.
func (s *Step) Timeout() time.Duration {
	raw, ok := s.Parameters["timeout"]
	if !ok {
		return DefaultStepTimeout
	}

	switch v := raw.(type) {
	case time.Duration:
		return v
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return DefaultStepTimeout
		}

		return d
	default:
		return DefaultStepTimeout
	}
}

// SetTimeout rewrites the step timeout parameter in place.
func (s *Step) SetTimeout(d time.Duration) {
	if s.Parameters == nil {
		s.Parameters = make(map[string]any)
	}

	s.Parameters["timeout"] = d.Seconds()
}

// Reset returns the step to the pending state, discarding any partial
// outcome, so the run loop can dispatch it again.
func (s *Step) Reset() {
	s.Status = StepStatusPending
	s.Progress = 0
	s.Skipped = false
	s.StartedAt = nil
	s.EndedAt = nil
	s.Result = nil
	s.Error = nil
}
