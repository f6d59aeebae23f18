package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/quantflow/pkg/models"
)

type mockExecutor struct{}

func (m *mockExecutor) Execute(_ context.Context, _ *models.Step, _ models.ExecutionContext) (*models.StepResult, error) {
	return &models.StepResult{Success: true}, nil
}

type mockFactory struct {
	id     string
	schema map[string]any
}

func (f *mockFactory) ID() string              { return f.id }
func (f *mockFactory) Name() string            { return "Mock" }
func (f *mockFactory) Description() string     { return "mock executor for tests" }
func (f *mockFactory) Schema() map[string]any  { return f.schema }
func (f *mockFactory) Create() (Executor, error) {
	return &mockExecutor{}, nil
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&mockFactory{id: "analysis"})

	executor, err := reg.Resolve("analysis")
	require.NoError(t, err)
	require.NotNil(t, executor)

	result, err := executor.Execute(context.Background(), &models.Step{ID: "a"}, models.ExecutionContext{})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRegistryResolveUnknownType(t *testing.T) {
	reg := NewRegistry(slog.Default())

	_, err := reg.Resolve("missing")
	require.Error(t, err)

	var unknownErr *UnknownStepTypeError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "missing", unknownErr.StepType)
}

func TestRegistryValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{"type": "string"},
			"window": map[string]any{"type": "number", "minimum": float64(1)},
		},
		"required": []any{"symbol"},
	}

	reg := NewRegistry(slog.Default())
	reg.Register(&mockFactory{id: "analysis", schema: schema})

	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{
			name:    "valid parameters",
			params:  map[string]any{"symbol": "BTCUSD", "window": float64(14)},
			wantErr: false,
		},
		{
			name:    "missing required field",
			params:  map[string]any{"window": float64(14)},
			wantErr: true,
		},
		{
			name:    "wrong type",
			params:  map[string]any{"symbol": float64(7)},
			wantErr: true,
		},
		{
			name:    "nil params fail required check",
			params:  nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidateParameters("analysis", tt.params)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryValidateParametersNilSchema(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&mockFactory{id: "report"})

	assert.NoError(t, reg.ValidateParameters("report", map[string]any{"anything": true}))
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&mockFactory{id: "analysis"})
	reg.Register(&mockFactory{id: "backtest"})

	infos := reg.List()
	assert.Len(t, infos, 2)
	assert.True(t, reg.Registered("analysis"))
	assert.False(t, reg.Registered("optimization"))
}
