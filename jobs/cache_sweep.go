package jobs

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/costwise/costwise/internal/analytics"
	jobmetrics "github.com/costwise/costwise/internal/jobs"
)

// CacheSweepJob deletes report cache entries stamped with a stale version.
// Version bumps orphan old entries rather than deleting them; the sweep
// reclaims that memory on a schedule.
type CacheSweepJob struct {
	Redis   *redis.Client
	Cache   *analytics.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheSweepJob wires dependencies for the sweep handler.
func NewCacheSweepJob(client *redis.Client, cache *analytics.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheSweepJob {
	return &CacheSweepJob{Redis: client, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes cache sweep tasks.
func (j *CacheSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("cache sweep: handler not configured")
	}

	tracker := j.metrics().Track(TaskAnalysisCacheSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	if j.Redis == nil {
		logger.Info("redis not configured, nothing to sweep")
		return nil
	}

	current, verErr := j.Cache.Version(ctx)
	if verErr != nil {
		logger.Error("read cache version", slog.Any("error", verErr))
		return verErr
	}

	removed := 0
	iter := j.Redis.Scan(ctx, 0, analytics.KeyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if entryVersion(key) >= current {
			continue
		}
		if delErr := j.Redis.Del(ctx, key).Err(); delErr != nil {
			logger.Error("delete stale entry", slog.String("key", key), slog.Any("error", delErr))
			return delErr
		}
		removed++
	}
	if iterErr := iter.Err(); iterErr != nil {
		logger.Error("scan cache entries", slog.Any("error", iterErr))
		return iterErr
	}

	logger.Info("cache sweep completed", slog.Int64("version", current), slog.Int("removed", removed))
	return nil
}

// entryVersion extracts the version stamp from the final key segment.
// Unparseable keys report the highest version so they are never swept.
func entryVersion(key string) int64 {
	idx := strings.LastIndex(key, ":")
	if idx < 0 || idx == len(key)-1 {
		return math.MaxInt64
	}
	ver, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return ver
}

func (j *CacheSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalysisCacheSweep))
	}
	return slog.Default().With(slog.String("job", TaskAnalysisCacheSweep))
}

func (j *CacheSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
