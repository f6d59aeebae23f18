package models

// ExecutionContext is the read-only view handed to step executors: the
// execution-level parameters plus the results of every dependency that has
// already completed.
type ExecutionContext struct {
	ExecutionID string                 `json:"execution_id"`
	Parameters  map[string]any         `json:"parameters,omitempty"`
	StepResults map[string]*StepResult `json:"step_results,omitempty"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
}
