package orchestrator

import (
	"fmt"

	"github.com/quantflow/quantflow/pkg/models"
)

// ValidateDependencies checks structural soundness of the step graph:
// unique ids, no self references, every dependency resolvable. It runs
// before any step is dispatched.
func ValidateDependencies(steps []*models.Step) error {
	ids := make(map[string]bool, len(steps))

	for _, step := range steps {
		if ids[step.ID] {
			return fmt.Errorf("duplicate step id '%s'", step.ID)
		}

		ids[step.ID] = true
	}

	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if dep == step.ID {
				return &CircularDependencyError{StepIDs: []string{step.ID}}
			}

			if !ids[dep] {
				return &UnknownDependencyError{StepID: step.ID, DependencyID: dep}
			}
		}
	}

	return nil
}

// DetectCycle simulates scheduling to exhaustion: repeatedly mark steps
// whose dependencies are all marked. Steps left over can never become ready
// and form (or depend on) a cycle.
func DetectCycle(steps []*models.Step) error {
	done := make(map[string]bool, len(steps))
	remaining := len(steps)

	for remaining > 0 {
		progressed := false

		for _, step := range steps {
			if done[step.ID] {
				continue
			}

			ready := true

			for _, dep := range step.Dependencies {
				if !done[dep] {
					ready = false

					break
				}
			}

			if ready {
				done[step.ID] = true
				remaining--
				progressed = true
			}
		}

		if !progressed {
			stuck := make([]string, 0, remaining)

			for _, step := range steps {
				if !done[step.ID] {
					stuck = append(stuck, step.ID)
				}
			}

			return &CircularDependencyError{StepIDs: stuck}
		}
	}

	return nil
}

// dependencySatisfied reports whether a dependency no longer blocks its
// dependents: it completed, or it failed as an optional step and was skipped.
func dependencySatisfied(execution *models.Execution, depID string) bool {
	dep, ok := execution.StepByID(depID)
	if !ok {
		return false
	}

	if dep.Status == models.StepStatusCompleted {
		return true
	}

	return dep.Status == models.StepStatusFailed && dep.Skipped
}

// ReadySteps returns the pending steps whose dependencies are all satisfied,
// in declaration order.
func ReadySteps(execution *models.Execution) []*models.Step {
	var ready []*models.Step

	for _, step := range execution.Steps {
		if step.Status != models.StepStatusPending {
			continue
		}

		satisfied := true

		for _, dep := range step.Dependencies {
			if !dependencySatisfied(execution, dep) {
				satisfied = false

				break
			}
		}

		if satisfied {
			ready = append(ready, step)
		}
	}

	return ready
}

// Settled reports whether every step reached an outcome the run loop no
// longer has to act on.
func Settled(execution *models.Execution) bool {
	for _, step := range execution.Steps {
		switch step.Status {
		case models.StepStatusCompleted:
		case models.StepStatusFailed:
			if !step.Skipped {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// Deadlocked reports whether pending steps exist but none can ever be
// dispatched: nothing runs, nothing is ready, and the blockers are failed
// non-skipped dependencies.
func Deadlocked(execution *models.Execution) bool {
	pending := false

	for _, step := range execution.Steps {
		switch step.Status {
		case models.StepStatusRunning:
			return false
		case models.StepStatusPending:
			pending = true
		}
	}

	return pending && len(ReadySteps(execution)) == 0
}
