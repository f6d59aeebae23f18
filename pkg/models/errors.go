package models

import (
	"fmt"
	"time"
)

// ErrorCode classifies a runtime failure so the recovery engine can select a
// strategy for it.
type ErrorCode string

const (
	ErrorCodeNetwork       ErrorCode = "NETWORK_ERROR"
	ErrorCodeTimeout       ErrorCode = "TIMEOUT_ERROR"
	ErrorCodeResource      ErrorCode = "RESOURCE_ERROR"
	ErrorCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrorCodeStepExecution ErrorCode = "STEP_EXECUTION_ERROR"
	ErrorCodeContinuation  ErrorCode = "CONTINUATION_ERROR"
)

// StructuredError is a tagged, classifiable error carrying a recoverability
// flag and remediation hints. Step executors return it directly; anything
// else they return is wrapped as a STEP_EXECUTION_ERROR.
type StructuredError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewStructuredError creates a tagged error stamped with the current time.
func NewStructuredError(code ErrorCode, message string, recoverable bool) *StructuredError {
	return &StructuredError{
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		Timestamp:   time.Now().UTC(),
	}
}

// WithSuggestions attaches remediation hints and returns the same error.
func (e *StructuredError) WithSuggestions(suggestions ...string) *StructuredError {
	e.Suggestions = append(e.Suggestions, suggestions...)

	return e
}

// AsStructured normalizes an arbitrary executor error. Structured errors pass
// through; everything else becomes a recoverable STEP_EXECUTION_ERROR.
func AsStructured(err error) *StructuredError {
	if err == nil {
		return nil
	}

	if serr, ok := err.(*StructuredError); ok {
		return serr
	}

	return NewStructuredError(ErrorCodeStepExecution, err.Error(), true)
}
