package models

import "time"

// Checkpoint is a point-in-time projection of execution progress handed to
// the checkpoint store. Saves are idempotent snapshots keyed by execution id;
// last write wins.
type Checkpoint struct {
	ID               string         `json:"id"`
	ExecutionID      string         `json:"execution_id"`
	CurrentStep      string         `json:"current_step,omitempty"`
	CompletedStepIDs []string       `json:"completed_step_ids"`
	Context          map[string]any `json:"context,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}
