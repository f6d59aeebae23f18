// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantflow/quantflow/pkg/models"
)

type EventType string

// Topic carries all engine events; consumers filter by event type metadata.
const Topic = "quantflow.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution_started"
	ExecutionProgressEvent  EventType = "execution_progress"
	ExecutionCompletedEvent EventType = "execution_completed"
	ExecutionFailedEvent    EventType = "execution_failed"
	ExecutionPausedEvent    EventType = "execution_paused"
	ExecutionResumedEvent   EventType = "execution_resumed"
	ExecutionCancelledEvent EventType = "execution_cancelled"

	StepStartedEvent   EventType = "step_started"
	StepCompletedEvent EventType = "step_completed"
	StepFailedEvent    EventType = "step_failed"

	RecoveryStartedEvent  EventType = "recovery_started"
	RecoveryFinishedEvent EventType = "recovery_finished"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	TemplateID string `json:"template_id,omitempty"`
	TotalSteps int    `json:"total_steps"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionProgress struct {
	BaseEvent

	Progress       int `json:"progress"`
	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
}

func (e ExecutionProgress) GetType() EventType { return ExecutionProgressEvent }

type ExecutionCompleted struct {
	BaseEvent

	DurationMs    int64 `json:"duration_ms"`
	StepsExecuted int   `json:"steps_executed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	Error            *models.StructuredError  `json:"error,omitempty"`
	RecoveryAttempts []models.RecoveryAttempt `json:"recovery_attempts,omitempty"`
	LastCheckpointID string                   `json:"last_checkpoint_id,omitempty"`
	DurationMs       int64                    `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionPaused struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type StepStarted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	StepName string `json:"step_name"`
	StepType string `json:"step_type"`
}

func (e StepStarted) GetType() EventType { return StepStartedEvent }

type StepCompleted struct {
	BaseEvent

	StepID     string             `json:"step_id"`
	DurationMs int64              `json:"duration_ms"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Artifacts  []string           `json:"artifacts,omitempty"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

type StepFailed struct {
	BaseEvent

	StepID     string                  `json:"step_id"`
	Error      *models.StructuredError `json:"error,omitempty"`
	Optional   bool                    `json:"optional"`
	DurationMs int64                   `json:"duration_ms"`
}

func (e StepFailed) GetType() EventType { return StepFailedEvent }

type RecoveryStarted struct {
	BaseEvent

	ErrorCode    models.ErrorCode `json:"error_code"`
	StrategyName string           `json:"strategy_name"`
	Attempt      int              `json:"attempt"`
}

func (e RecoveryStarted) GetType() EventType { return RecoveryStartedEvent }

type RecoveryFinished struct {
	BaseEvent

	ErrorCode    models.ErrorCode `json:"error_code"`
	StrategyName string           `json:"strategy_name"`
	Success      bool             `json:"success"`
	Exhausted    bool             `json:"exhausted"`
}

func (e RecoveryFinished) GetType() EventType { return RecoveryFinishedEvent }
