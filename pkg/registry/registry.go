// Package registry maps step type tags to executor implementations and
// validates step parameters against each executor's declared schema.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quantflow/quantflow/pkg/models"
)

// Executor performs the work of one step. Implementations must be
// side-effect-isolated per step id and observe ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, step *models.Step, ectx models.ExecutionContext) (*models.StepResult, error)
}

// ExecutorFactory creates executor instances and describes the step type.
type ExecutorFactory interface {
	// ID returns the step type tag this factory serves.
	ID() string

	// Name returns the human-readable name for this step type.
	Name() string

	// Description returns a description of what this step type does.
	Description() string

	// Schema returns the JSON schema step parameters are validated against.
	// A nil schema skips validation.
	Schema() map[string]any

	// Create builds a ready-to-use executor.
	Create() (Executor, error)
}

// UnknownStepTypeError indicates a step references a type tag with no
// registered executor. It is a construction-time error and never retried.
type UnknownStepTypeError struct {
	StepType string
}

func (e *UnknownStepTypeError) Error() string {
	return fmt.Sprintf("step type '%s' not registered", e.StepType)
}

type Registry struct {
	logger    *slog.Logger
	factories map[string]ExecutorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[string]ExecutorFactory),
	}
}

func (r *Registry) Register(factory ExecutorFactory) {
	r.factories[factory.ID()] = factory
}

// Resolve returns an executor for the step type, or UnknownStepTypeError.
func (r *Registry) Resolve(stepType string) (Executor, error) {
	factory, ok := r.factories[stepType]
	if !ok {
		return nil, &UnknownStepTypeError{StepType: stepType}
	}

	return factory.Create()
}

// Registered reports whether the step type has an executor.
func (r *Registry) Registered(stepType string) bool {
	_, ok := r.factories[stepType]

	return ok
}

// ValidateParameters checks step parameters against the factory's JSON
// schema. Validation happens at execution build time so malformed parameters
// never reach a running executor.
func (r *Registry) ValidateParameters(stepType string, params map[string]any) error {
	factory, ok := r.factories[stepType]
	if !ok {
		return &UnknownStepTypeError{StepType: stepType}
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if params == nil {
		params = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation for step type %s: %w", stepType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid parameters for step type %s: %s", stepType, strings.Join(details, "; "))
	}

	return nil
}

// StepTypeInfo describes one registered step type for discovery endpoints.
type StepTypeInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// List returns metadata for every registered step type.
func (r *Registry) List() []StepTypeInfo {
	infos := make([]StepTypeInfo, 0, len(r.factories))

	for _, factory := range r.factories {
		infos = append(infos, StepTypeInfo{
			ID:          factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return infos
}
