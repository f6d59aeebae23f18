package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecutionNotFound indicates the orchestrator has no state for the
// requested execution id.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrExecutionNotPaused indicates a resume was requested for an execution
// that is not in a resumable state.
var ErrExecutionNotPaused = errors.New("execution is not paused")

// ErrExecutionTerminal indicates a lifecycle transition was requested on an
// execution that already finished.
var ErrExecutionTerminal = errors.New("execution already finished")

// CircularDependencyError is raised at build time when the step graph can
// never be fully scheduled. StepIDs lists the steps that would starve.
type CircularDependencyError struct {
	StepIDs []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: steps %s can never become ready", strings.Join(e.StepIDs, ", "))
}

// UnknownTemplateError indicates the execution config references a template
// id that is not registered.
type UnknownTemplateError struct {
	TemplateID string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("template '%s' not registered", e.TemplateID)
}

// UnknownDependencyError indicates a step depends on an id that does not
// exist in the same execution.
type UnknownDependencyError struct {
	StepID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step '%s' depends on unknown step '%s'", e.StepID, e.DependencyID)
}
