package cmd

import (
	"context"
	"strings"

	"github.com/quantflow/quantflow/pkg/checkpoint"
	"github.com/quantflow/quantflow/pkg/checkpoint/file"
	"github.com/quantflow/quantflow/pkg/checkpoint/memory"
	"github.com/quantflow/quantflow/pkg/checkpoint/postgres"
	"github.com/quantflow/quantflow/pkg/checkpoint/redis"
)

var supportedCheckpointProviders = []string{"memory", "file", "redis", "postgres", "postgresql"}

// NewCheckpointStore creates a checkpoint store from a URL. The scheme picks
// the backend; anything unrecognized falls back to the file store with the
// URL as its root directory.
func NewCheckpointStore(ctx context.Context, url string) (checkpoint.Store, error) {
	switch parseCheckpointProvider(url) {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		return redis.NewStoreFromURL(url, 0)
	case "postgres", "postgresql":
		return postgres.NewStore(ctx, url)
	default:
		return file.NewStore(strings.TrimPrefix(url, "file://")), nil
	}
}

func parseCheckpointProvider(url string) string {
	provider, _, _ := strings.Cut(url, "://")

	for _, supported := range supportedCheckpointProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
