package models

import "time"

// RecoveryAttemptStatus tracks the lifecycle of one automated repair attempt.
type RecoveryAttemptStatus string

const (
	RecoveryAttemptInProgress RecoveryAttemptStatus = "in_progress"
	RecoveryAttemptSuccess    RecoveryAttemptStatus = "success"
	RecoveryAttemptFailed     RecoveryAttemptStatus = "failed"
)

// RecoveryAttempt is an append-only audit record of one repair attempt. It is
// never mutated after the fact except to close out Status and EndedAt.
type RecoveryAttempt struct {
	ID           string                `json:"id"`
	ExecutionID  string                `json:"execution_id"`
	ErrorCode    ErrorCode             `json:"error_code"`
	StrategyName string                `json:"strategy_name"`
	Status       RecoveryAttemptStatus `json:"status"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      *time.Time            `json:"ended_at,omitempty"`
	CheckpointID string                `json:"checkpoint_id,omitempty"`
}
