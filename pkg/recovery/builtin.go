package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantflow/quantflow/pkg/models"
)

// Minimum fraction of free resources required before a RESOURCE_ERROR retry
// is allowed to proceed.
const minResourceHeadroom = 0.1

func matchCode(code models.ErrorCode) func(*models.StructuredError) bool {
	return func(serr *models.StructuredError) bool {
		return serr.Code == code
	}
}

// failedSteps lists non-skipped failed steps in the execution.
func failedSteps(ops Operations, executionID string) ([]*models.Step, error) {
	execution, err := ops.Snapshot(executionID)
	if err != nil {
		return nil, err
	}

	var failed []*models.Step

	for _, step := range execution.Steps {
		if step.Status == models.StepStatusFailed && !step.Skipped {
			failed = append(failed, step)
		}
	}

	return failed, nil
}

// BuiltinStrategies returns the default strategy set, ordered by matching
// priority.
func BuiltinStrategies() []Strategy {
	return []Strategy{
		{
			Name:        "network_reconnect",
			MaxAttempts: 5,
			Backoff:     Backoff{Kind: BackoffExponential, Base: time.Second, Max: 30 * time.Second},
			Matches:     matchCode(models.ErrorCodeNetwork),
			Repair:      repairNetwork,
		},
		{
			Name:        "timeout_extend",
			MaxAttempts: 3,
			Backoff:     Backoff{Kind: BackoffLinear, Base: 2 * time.Second, Max: 10 * time.Second},
			Matches:     matchCode(models.ErrorCodeTimeout),
			Repair:      repairTimeout,
		},
		{
			Name:        "resource_throttle",
			MaxAttempts: 2,
			Backoff:     Backoff{Kind: BackoffFixed, Base: 5 * time.Second},
			Matches:     matchCode(models.ErrorCodeResource),
			Repair:      repairResource,
		},
		{
			Name:        "validation_autofix",
			MaxAttempts: 1,
			Backoff:     Backoff{Kind: BackoffFixed, Base: 0},
			Matches: func(serr *models.StructuredError) bool {
				// Validation errors are not transient; only explicitly
				// recoverable ones get the single autofix attempt.
				return serr.Code == models.ErrorCodeValidation && serr.Recoverable
			},
			Repair: repairValidation,
		},
		{
			Name:        "step_retry",
			MaxAttempts: 3,
			Backoff:     Backoff{Kind: BackoffExponential, Base: time.Second, Max: 15 * time.Second},
			Matches: func(serr *models.StructuredError) bool {
				return serr.Code == models.ErrorCodeStepExecution && serr.Recoverable
			},
			Repair: repairStepExecution,
		},
		{
			Name:        "continuation_retry",
			MaxAttempts: 3,
			Backoff:     Backoff{Kind: BackoffExponential, Base: time.Second, Max: 15 * time.Second},
			Matches:     matchCode(models.ErrorCodeContinuation),
			Repair: func(_ context.Context, _ RepairTarget) error {
				// Resumption failures carry no step state to repair; the
				// bounded retry itself is the remedy.
				return nil
			},
		},
	}
}

// repairNetwork verifies connectivity to required services before permitting
// a resume. An unhealthy probe fails the attempt.
func repairNetwork(ctx context.Context, target RepairTarget) error {
	if target.Connectivity == nil {
		return nil
	}

	if err := target.Connectivity.CheckConnectivity(ctx); err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}

	failed, err := failedSteps(target.Ops, target.ExecutionID)
	if err != nil {
		return err
	}

	for _, step := range failed {
		if err := target.Ops.ResetStep(target.ExecutionID, step.ID); err != nil {
			return err
		}
	}

	return nil
}

// repairTimeout doubles the timeout budget of every failed step and discards
// their partial results before the retry.
func repairTimeout(_ context.Context, target RepairTarget) error {
	failed, err := failedSteps(target.Ops, target.ExecutionID)
	if err != nil {
		return err
	}

	if len(failed) == 0 {
		return errors.New("no failed step to extend timeout for")
	}

	for _, step := range failed {
		if err := target.Ops.ScaleStepTimeout(target.ExecutionID, step.ID, 2); err != nil {
			return err
		}

		if err := target.Ops.ResetStep(target.ExecutionID, step.ID); err != nil {
			return err
		}
	}

	return nil
}

// repairResource verifies headroom and lowers the engine's footprint by
// reducing batch parallelism before the retry.
func repairResource(ctx context.Context, target RepairTarget) error {
	if target.Resources != nil {
		headroom, err := target.Resources.Headroom(ctx)
		if err != nil {
			return fmt.Errorf("resource probe failed: %w", err)
		}

		if headroom < minResourceHeadroom {
			return fmt.Errorf("insufficient resource headroom: %.2f", headroom)
		}
	}

	if err := target.Ops.ReduceParallelism(target.ExecutionID); err != nil {
		return err
	}

	failed, err := failedSteps(target.Ops, target.ExecutionID)
	if err != nil {
		return err
	}

	for _, step := range failed {
		if err := target.Ops.ResetStep(target.ExecutionID, step.ID); err != nil {
			return err
		}
	}

	return nil
}

// repairValidation applies the automatic-fix routine to failed steps:
// dropping null parameters and restoring broken timeout values. If nothing
// was fixable the attempt fails immediately.
func repairValidation(_ context.Context, target RepairTarget) error {
	failed, err := failedSteps(target.Ops, target.ExecutionID)
	if err != nil {
		return err
	}

	fixed := false

	for _, step := range failed {
		stepFixed := false

		for key, value := range step.Parameters {
			if value == nil {
				// A nil value removes the parameter.
				if err := target.Ops.SetStepParameter(target.ExecutionID, step.ID, key, nil); err != nil {
					return err
				}

				stepFixed = true
			}
		}

		if step.Timeout() <= 0 {
			if err := target.Ops.SetStepParameter(target.ExecutionID, step.ID, "timeout", models.DefaultStepTimeout.Seconds()); err != nil {
				return err
			}

			stepFixed = true
		}

		if stepFixed {
			if err := target.Ops.ResetStep(target.ExecutionID, step.ID); err != nil {
				return err
			}

			fixed = true
		}
	}

	if !fixed {
		return errors.New("validation issue has no automatic fix")
	}

	return nil
}

// repairStepExecution resets failed steps to pending, clearing step-scoped
// state, so the run loop re-dispatches them.
func repairStepExecution(_ context.Context, target RepairTarget) error {
	failed, err := failedSteps(target.Ops, target.ExecutionID)
	if err != nil {
		return err
	}

	if len(failed) == 0 {
		return errors.New("no failed step to reset")
	}

	for _, step := range failed {
		if err := target.Ops.ResetStep(target.ExecutionID, step.ID); err != nil {
			return err
		}
	}

	return nil
}
