// Package memory provides an in-process checkpoint store used by tests and
// non-resumable deployments.
package memory

import (
	"context"
	"sync"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/models"
)

type Store struct {
	mu          sync.RWMutex
	checkpoints map[string]*models.Checkpoint
}

func NewStore() *Store {
	return &Store{
		checkpoints: make(map[string]*models.Checkpoint),
	}
}

func (s *Store) Save(_ context.Context, executionID string, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := *cp
	dup.CompletedStepIDs = append([]string(nil), cp.CompletedStepIDs...)
	s.checkpoints[executionID] = &dup

	return nil
}

func (s *Store) Load(_ context.Context, executionID string) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[executionID]
	if !ok {
		return nil, checkpoint.ErrCheckpointNotFound
	}

	dup := *cp
	dup.CompletedStepIDs = append([]string(nil), cp.CompletedStepIDs...)

	return &dup, nil
}

func (s *Store) Delete(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, executionID)

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

var _ checkpoint.Store = (*Store)(nil)
