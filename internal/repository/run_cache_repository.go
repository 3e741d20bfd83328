package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const runKeyPrefix = "timetable:run:"

// RunCacheRepository keeps timetable runs in Redis so any API replica can
// report progress or save a winner.
type RunCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRunCacheRepository constructs a Redis-backed run store.
func NewRunCacheRepository(client *redis.Client, logger *zap.Logger) *RunCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunCacheRepository{client: client, logger: logger}
}

func runKey(id string) string {
	return runKeyPrefix + id
}

// Get loads a run, returning appErrors.ErrCacheMiss when absent or expired.
func (r *RunCacheRepository) Get(ctx context.Context, id string) (*dto.TimetableRun, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get run %s: %w", id, err)
	}

	var run dto.TimetableRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

// Put stores the run with the given TTL, replacing any previous version.
func (r *RunCacheRepository) Put(ctx context.Context, run *dto.TimetableRun, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	if err := r.client.Set(ctx, runKey(run.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set run %s: %w", run.ID, err)
	}
	return nil
}

// Delete removes a run.
func (r *RunCacheRepository) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, runKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete run %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RunCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
