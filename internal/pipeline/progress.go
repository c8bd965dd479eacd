package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/carrier-ingest/internal/pkg/logger"
)

// progressTTL bounds how long finished-job progress lingers in Redis.
const progressTTL = 24 * time.Hour

// ProgressStore persists per-job stage progress in Redis so the API can
// answer status polls while a worker owns the job. A nil client degrades to
// a no-op store, keeping the pipeline usable without Redis.
type ProgressStore struct {
	rdb *redis.Client
}

// NewProgressStore wraps a Redis client; rdb may be nil.
func NewProgressStore(rdb *redis.Client) *ProgressStore {
	return &ProgressStore{rdb: rdb}
}

func progressKey(jobID string) string {
	return fmt.Sprintf("ingest:progress:%s", jobID)
}

// Set records the current stage and percentage for a job.
func (s *ProgressStore) Set(ctx context.Context, jobID string, stage Stage, percent int) error {
	if s.rdb == nil {
		return nil
	}
	key := progressKey(jobID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"stage":      string(stage),
		"percent":    percent,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the last recorded stage and percentage for a job. A job with
// no recorded progress reports redis.Nil.
func (s *ProgressStore) Get(ctx context.Context, jobID string) (Stage, int, error) {
	if s.rdb == nil {
		return "", 0, redis.Nil
	}
	vals, err := s.rdb.HGetAll(ctx, progressKey(jobID)).Result()
	if err != nil {
		return "", 0, err
	}
	if len(vals) == 0 {
		return "", 0, redis.Nil
	}
	percent := 0
	fmt.Sscanf(vals["percent"], "%d", &percent)
	return Stage(vals["stage"]), percent, nil
}

// Clear drops a job's progress record.
func (s *ProgressStore) Clear(ctx context.Context, jobID string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, progressKey(jobID)).Err()
}

// Callback adapts the store into a pipeline ProgressFunc. Write failures are
// logged and swallowed; a Redis blip must not fail the job.
func (s *ProgressStore) Callback(ctx context.Context) ProgressFunc {
	return func(jobID string, stage Stage, percent int) {
		if err := s.Set(ctx, jobID, stage, percent); err != nil {
			logger.Warn("progress write failed", "job_id", jobID, "error", err.Error())
		}
	}
}
