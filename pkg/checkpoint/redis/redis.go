// Package redis provides a Redis-backed checkpoint store. Snapshots live
// under a key prefix with an optional TTL so abandoned executions age out.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/models"
)

const defaultKeyPrefix = "quantflow:checkpoint:"

type Store struct {
	client    goredis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewStore wraps an existing client. A zero ttl keeps checkpoints forever.
func NewStore(client goredis.UniversalClient, ttl time.Duration) *Store {
	return &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

// NewStoreFromURL connects using a redis:// URL.
func NewStoreFromURL(url string, ttl time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return NewStore(goredis.NewClient(opts), ttl), nil
}

func (s *Store) key(executionID string) string {
	return s.keyPrefix + executionID
}

func (s *Store) Save(ctx context.Context, executionID string, cp *models.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s: %w", executionID, err)
	}

	err = s.client.Set(ctx, s.key(executionID), payload, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) Load(ctx context.Context, executionID string) (*models.Checkpoint, error) {
	payload, err := s.client.Get(ctx, s.key(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, checkpoint.ErrCheckpointNotFound
		}

		return nil, fmt.Errorf("failed to read checkpoint %s: %w", executionID, err)
	}

	var cp models.Checkpoint

	err = json.Unmarshal(payload, &cp)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", executionID, err)
	}

	return &cp, nil
}

func (s *Store) Delete(ctx context.Context, executionID string) error {
	err := s.client.Del(ctx, s.key(executionID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", executionID, err)
	}

	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

var _ checkpoint.Store = (*Store)(nil)
