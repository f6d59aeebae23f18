// Package file provides a file-system checkpoint store: one JSON document
// per execution id under a root directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/models"
)

type Store struct {
	root string
}

func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Store{root: cleanRoot}
}

// validateExecutionID rejects ids that could escape the checkpoint directory.
func validateExecutionID(executionID string) error {
	if executionID == "" {
		return errors.New("execution ID cannot be empty")
	}

	if strings.Contains(executionID, "..") || strings.Contains(executionID, "/") || strings.Contains(executionID, "\\") {
		return errors.New("execution ID contains invalid characters")
	}

	return nil
}

func (s *Store) path(executionID string) string {
	return filepath.Join(s.root, "checkpoints", executionID+".json")
}

func (s *Store) Save(_ context.Context, executionID string, cp *models.Checkpoint) error {
	if err := validateExecutionID(executionID); err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	dir := filepath.Join(s.root, "checkpoints")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s: %w", executionID, err)
	}

	err = os.WriteFile(s.path(executionID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) Load(_ context.Context, executionID string) (*models.Checkpoint, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, fmt.Errorf("invalid execution ID: %w", err)
	}

	data, err := os.ReadFile(s.path(executionID)) // #nosec G304 -- path is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, checkpoint.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("failed to read checkpoint %s: %w", executionID, err)
	}

	var cp models.Checkpoint

	err = json.Unmarshal(data, &cp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", executionID, err)
	}

	return &cp, nil
}

func (s *Store) Delete(_ context.Context, executionID string) error {
	if err := validateExecutionID(executionID); err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	err := os.Remove(s.path(executionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

var _ checkpoint.Store = (*Store)(nil)
