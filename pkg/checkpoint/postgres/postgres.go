// Package postgres provides a PostgreSQL-backed checkpoint store. The schema
// is created on connect; snapshots are upserted by execution id.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS execution_checkpoints (
		execution_id VARCHAR(255) PRIMARY KEY,
		checkpoint_id VARCHAR(255) NOT NULL,
		current_step VARCHAR(255),
		completed_step_ids JSONB NOT NULL DEFAULT '[]',
		context JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
`

type Store struct {
	db *sql.DB
}

// NewStore connects to the database and ensures the checkpoint table exists.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, executionID string, cp *models.Checkpoint) error {
	completed, err := json.Marshal(cp.CompletedStepIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal completed steps for %s: %w", executionID, err)
	}

	cpContext, err := json.Marshal(cp.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context for %s: %w", executionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_checkpoints
			(execution_id, checkpoint_id, current_step, completed_step_ids, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (execution_id) DO UPDATE SET
			checkpoint_id = EXCLUDED.checkpoint_id,
			current_step = EXCLUDED.current_step,
			completed_step_ids = EXCLUDED.completed_step_ids,
			context = EXCLUDED.context,
			created_at = EXCLUDED.created_at`,
		executionID, cp.ID, cp.CurrentStep, completed, cpContext, cp.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, current_step, completed_step_ids, context, created_at
		FROM execution_checkpoints
		WHERE execution_id = $1`,
		executionID,
	)

	var (
		cp        models.Checkpoint
		completed []byte
		cpContext []byte
	)

	cp.ExecutionID = executionID

	err := row.Scan(&cp.ID, &cp.CurrentStep, &completed, &cpContext, &cp.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("failed to load checkpoint %s: %w", executionID, err)
	}

	if err := json.Unmarshal(completed, &cp.CompletedStepIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed steps for %s: %w", executionID, err)
	}

	if len(cpContext) > 0 {
		if err := json.Unmarshal(cpContext, &cp.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context for %s: %w", executionID, err)
		}
	}

	return &cp, nil
}

func (s *Store) Delete(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM execution_checkpoints WHERE execution_id = $1`, executionID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

var _ checkpoint.Store = (*Store)(nil)
