package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

type mockOps struct {
	execution     *models.Execution
	resets        []string
	scaled        map[string]float64
	parallelism   int
	checkpoints   int
	checkpointErr error
	resumeErrs    []error
	resumes       int
}

func newMockOps(steps ...*models.Step) *mockOps {
	return &mockOps{
		execution: &models.Execution{
			ID:     "exec-1",
			Status: models.ExecutionStatusFailed,
			Steps:  steps,
		},
		scaled:      map[string]float64{},
		parallelism: 4,
	}
}

func (m *mockOps) Snapshot(executionID string) (*models.Execution, error) {
	if executionID != m.execution.ID {
		return nil, fmt.Errorf("execution %s not found", executionID)
	}

	return m.execution.Clone(), nil
}

func (m *mockOps) ResetStep(_, stepID string) error {
	m.resets = append(m.resets, stepID)

	step, ok := m.execution.StepByID(stepID)
	if !ok {
		return fmt.Errorf("step %s not found", stepID)
	}

	step.Reset()

	return nil
}

func (m *mockOps) ScaleStepTimeout(_, stepID string, factor float64) error {
	m.scaled[stepID] = factor

	return nil
}

func (m *mockOps) SetStepParameter(_, stepID, key string, value any) error {
	step, ok := m.execution.StepByID(stepID)
	if !ok {
		return fmt.Errorf("step %s not found", stepID)
	}

	if value == nil {
		delete(step.Parameters, key)

		return nil
	}

	if step.Parameters == nil {
		step.Parameters = map[string]any{}
	}

	step.Parameters[key] = value

	return nil
}

func (m *mockOps) ReduceParallelism(string) error {
	if m.parallelism > 1 {
		m.parallelism /= 2
	}

	return nil
}

func (m *mockOps) WriteCheckpoint(_ context.Context, executionID string) (*models.Checkpoint, error) {
	if m.checkpointErr != nil {
		return nil, m.checkpointErr
	}

	m.checkpoints++

	return &models.Checkpoint{
		ID:          fmt.Sprintf("cp-%d", m.checkpoints),
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (m *mockOps) Resume(context.Context, string) error {
	m.resumes++
	if len(m.resumeErrs) == 0 {
		return nil
	}

	err := m.resumeErrs[0]
	m.resumeErrs = m.resumeErrs[1:]

	return err
}

func failedStep(id string) *models.Step {
	return &models.Step{
		ID:         id,
		Name:       id,
		Type:       "backtest",
		Status:     models.StepStatusFailed,
		Parameters: map[string]any{},
	}
}

func newTestEngine(ops Operations, strategies ...Strategy) (*Engine, *[]time.Duration) {
	engine := NewEngine(Config{Ops: ops, Strategies: strategies})

	slept := &[]time.Duration{}
	engine.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)

		return nil
	}

	return engine, slept
}

func TestEngineAttemptSuccess(t *testing.T) {
	ops := newMockOps(failedStep("backtest"))
	engine, slept := newTestEngine(ops)

	serr := models.NewStructuredError(models.ErrorCodeStepExecution, "boom", true)
	result := engine.Attempt(context.Background(), "exec-1", serr)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "step_retry", result.StrategyName)
	assert.True(t, result.Recovered())
	require.NotNil(t, result.Attempt)
	assert.Equal(t, models.RecoveryAttemptSuccess, result.Attempt.Status)
	assert.Equal(t, "cp-1", result.Attempt.CheckpointID)
	assert.NotNil(t, result.Attempt.EndedAt)

	assert.Equal(t, []string{"backtest"}, ops.resets)
	assert.Equal(t, []time.Duration{time.Second}, *slept)
	assert.Equal(t, 1, engine.AttemptCount("exec-1", models.ErrorCodeStepExecution))
}

func TestEngineAttemptBounded(t *testing.T) {
	ops := newMockOps()

	repairs := 0
	engine, slept := newTestEngine(ops, Strategy{
		Name:        "always_fail",
		MaxAttempts: 3,
		Backoff:     Backoff{Kind: BackoffExponential, Base: time.Second, Max: 15 * time.Second},
		Matches:     matchCode(models.ErrorCodeStepExecution),
		Repair: func(context.Context, RepairTarget) error {
			repairs++

			return errors.New("still broken")
		},
	})

	serr := models.NewStructuredError(models.ErrorCodeStepExecution, "boom", true)

	for i := 0; i < 3; i++ {
		result := engine.Attempt(context.Background(), "exec-1", serr)
		assert.Equal(t, OutcomeFailed, result.Outcome)
		assert.False(t, result.Terminal())
	}

	result := engine.Attempt(context.Background(), "exec-1", serr)
	assert.Equal(t, OutcomeExhausted, result.Outcome)
	assert.True(t, result.Terminal())
	assert.Nil(t, result.Attempt)

	// The exhausted call did not sleep, repair, or record.
	assert.Equal(t, 3, repairs)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)

	history := engine.History("exec-1")
	require.Len(t, history, 3)
	for _, attempt := range history {
		assert.Equal(t, models.RecoveryAttemptFailed, attempt.Status)
		assert.Equal(t, "always_fail", attempt.StrategyName)
	}
}

func TestEngineAttemptUnmatched(t *testing.T) {
	engine, slept := newTestEngine(newMockOps())

	serr := models.NewStructuredError(models.ErrorCodeValidation, "bad input", false)
	result := engine.Attempt(context.Background(), "exec-1", serr)

	assert.Equal(t, OutcomeUnmatched, result.Outcome)
	assert.True(t, result.Terminal())
	assert.Empty(t, *slept)
	assert.Empty(t, engine.History("exec-1"))
}

func TestEngineAttemptsIndependentPerErrorCode(t *testing.T) {
	ops := newMockOps(failedStep("backtest"))
	engine, _ := newTestEngine(ops)

	stepErr := models.NewStructuredError(models.ErrorCodeStepExecution, "boom", true)
	netErr := models.NewStructuredError(models.ErrorCodeNetwork, "conn refused", true)

	engine.Attempt(context.Background(), "exec-1", stepErr)
	engine.Attempt(context.Background(), "exec-1", netErr)

	assert.Equal(t, 1, engine.AttemptCount("exec-1", models.ErrorCodeStepExecution))
	assert.Equal(t, 1, engine.AttemptCount("exec-1", models.ErrorCodeNetwork))
	assert.Len(t, engine.History("exec-1"), 2)
}

func TestEngineCheckpointFailureDoesNotBlockRepair(t *testing.T) {
	ops := newMockOps(failedStep("backtest"))
	ops.checkpointErr = errors.New("store down")

	engine, _ := newTestEngine(ops)

	serr := models.NewStructuredError(models.ErrorCodeStepExecution, "boom", true)
	result := engine.Attempt(context.Background(), "exec-1", serr)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Empty(t, result.Attempt.CheckpointID)
	assert.Equal(t, []string{"backtest"}, ops.resets)
}

func TestEngineResume(t *testing.T) {
	ops := newMockOps()
	engine, _ := newTestEngine(ops)

	require.NoError(t, engine.Resume(context.Background(), "exec-1"))
	assert.Equal(t, 1, ops.resumes)
}

func TestEngineResumeRetriesContinuationFailure(t *testing.T) {
	ops := newMockOps()
	ops.resumeErrs = []error{errors.New("bus unavailable")}

	engine, slept := newTestEngine(ops)

	require.NoError(t, engine.Resume(context.Background(), "exec-1"))

	// First resume failed, one continuation_retry attempt, second resume ok.
	assert.Equal(t, 2, ops.resumes)
	assert.Equal(t, 1, engine.AttemptCount("exec-1", models.ErrorCodeContinuation))
	assert.Len(t, *slept, 1)
}

func TestEngineResumeGivesUpWhenExhausted(t *testing.T) {
	ops := newMockOps()
	ops.resumeErrs = []error{
		errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"),
	}

	engine, _ := newTestEngine(ops)

	err := engine.Resume(context.Background(), "exec-1")
	require.Error(t, err)
	assert.Equal(t, 3, engine.AttemptCount("exec-1", models.ErrorCodeContinuation))
}
