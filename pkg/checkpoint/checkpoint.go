// Package checkpoint defines the persistence boundary for execution
// snapshots. Saves are idempotent and keyed by execution id; a missing
// checkpoint is reported through ErrCheckpointNotFound so callers can treat
// absence as "no resumable state".
package checkpoint

import (
	"context"
	"errors"

	"github.com/quantflow/quantflow/pkg/models"
)

// ErrCheckpointNotFound indicates no snapshot exists for the execution id.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Store durably saves, loads, and deletes execution snapshots.
type Store interface {
	Save(ctx context.Context, executionID string, cp *models.Checkpoint) error
	Load(ctx context.Context, executionID string) (*models.Checkpoint, error)
	Delete(ctx context.Context, executionID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// IsNotFound checks if an error indicates a missing checkpoint.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}
