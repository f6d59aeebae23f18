package models

import "time"

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// Execution is one run of a strategy pipeline. The orchestrator is the only
// writer of Execution and Step state; other components read snapshots and
// request transitions through the orchestrator's update API.
type Execution struct {
	ID               string           `json:"id"`
	TemplateID       string           `json:"template_id,omitempty"`
	Status           ExecutionStatus  `json:"status"`
	Steps            []*Step          `json:"steps"`
	Parameters       map[string]any   `json:"parameters,omitempty"`
	Resumable        bool             `json:"resumable"`
	CurrentStepCount int              `json:"current_step_count"`
	TotalSteps       int              `json:"total_steps"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
	LastError        *StructuredError `json:"last_error,omitempty"`
	LastCheckpointID string           `json:"last_checkpoint_id,omitempty"`
}

// StepByID finds a step within the execution.
func (e *Execution) StepByID(id string) (*Step, bool) {
	for _, step := range e.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// CompletedStepIDs returns the ids of all completed steps in declaration order.
func (e *Execution) CompletedStepIDs() []string {
	ids := make([]string, 0, len(e.Steps))

	for _, step := range e.Steps {
		if step.Status == StepStatusCompleted {
			ids = append(ids, step.ID)
		}
	}

	return ids
}

// Progress returns overall completion as a 0-100 percentage. Failed optional
// steps count as settled so they do not hold the percentage down forever.
func (e *Execution) Progress() int {
	if len(e.Steps) == 0 {
		return 0
	}

	settled := 0

	for _, step := range e.Steps {
		if step.Status == StepStatusCompleted || (step.Status == StepStatusFailed && step.Skipped) {
			settled++
		}
	}

	return settled * 100 / len(e.Steps)
}

// CountByStatus tallies steps per status.
func (e *Execution) CountByStatus() map[StepStatus]int {
	counts := make(map[StepStatus]int, 4)

	for _, step := range e.Steps {
		counts[step.Status]++
	}

	return counts
}

// Clone produces a deep copy safe to hand to readers outside the
// orchestrator's writer path.
func (e *Execution) Clone() *Execution {
	dup := *e
	dup.Steps = make([]*Step, len(e.Steps))

	for i, step := range e.Steps {
		st := *step
		if step.Parameters != nil {
			st.Parameters = make(map[string]any, len(step.Parameters))
			for k, v := range step.Parameters {
				st.Parameters[k] = v
			}
		}

		dup.Steps[i] = &st
	}

	return &dup
}
