package recovery

import (
	"context"
	"log/slog"

	"github.com/quantflow/quantflow/pkg/models"
)

// Operations is the orchestrator-side update API. The recovery engine never
// mutates execution state directly; every transition goes through here to
// preserve the single-writer discipline.
type Operations interface {
	// Snapshot returns a deep copy of the execution.
	Snapshot(executionID string) (*models.Execution, error)

	// ResetStep returns a failed step to pending, discarding its partial
	// result, so the run loop re-dispatches it.
	ResetStep(executionID, stepID string) error

	// ScaleStepTimeout multiplies the step's timeout budget.
	ScaleStepTimeout(executionID, stepID string, factor float64) error

	// SetStepParameter rewrites one parameter on a step. A nil value
	// removes the parameter.
	SetStepParameter(executionID, stepID, key string, value any) error

	// ReduceParallelism halves the execution's batch width (floor 1).
	ReduceParallelism(executionID string) error

	// WriteCheckpoint persists a snapshot and returns it; taken immediately
	// before a repair action runs.
	WriteCheckpoint(ctx context.Context, executionID string) (*models.Checkpoint, error)

	// Resume re-enters the run loop for a paused execution.
	Resume(ctx context.Context, executionID string) error
}

// ConnectivityChecker probes reachability of the remote services step
// executors depend on.
type ConnectivityChecker interface {
	CheckConnectivity(ctx context.Context) error
}

// ResourceProbe reports available resource headroom as a fraction in [0,1].
type ResourceProbe interface {
	Headroom(ctx context.Context) (float64, error)
}

// RepairTarget is everything a repair action may act on.
type RepairTarget struct {
	ExecutionID  string
	Error        *models.StructuredError
	Ops          Operations
	Connectivity ConnectivityChecker
	Resources    ResourceProbe
	Logger       *slog.Logger
}

// Strategy is a bounded, typed recovery policy for one error classification.
type Strategy struct {
	Name        string
	MaxAttempts int
	Backoff     Backoff

	// Matches decides whether this strategy handles the error.
	Matches func(serr *models.StructuredError) bool

	// Repair performs the automated fix. A nil error permits resumption;
	// returning an error fails the attempt.
	Repair func(ctx context.Context, target RepairTarget) error
}
