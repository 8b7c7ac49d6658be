package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/costwise/costwise/internal/analytics"
	jobmetrics "github.com/costwise/costwise/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CacheRefreshJob re-extends the TTL of every cached report variant of one
// analysis so an actively consulted upload does not fall out of the cache.
type CacheRefreshJob struct {
	Redis   *redis.Client
	Cache   *analytics.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheRefreshJob wires dependencies for the refresh handler.
func NewCacheRefreshJob(client *redis.Client, cache *analytics.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheRefreshJob {
	return &CacheRefreshJob{Redis: client, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes cache refresh tasks.
func (j *CacheRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("cache refresh: handler not configured")
	}
	var payload CacheRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.AnalysisID == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAnalysisCacheRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("analysis_id", payload.AnalysisID))
	if j.Redis == nil {
		logger.Info("redis not configured, nothing to refresh")
		return nil
	}

	pattern := analytics.KeyPrefix + ":" + payload.AnalysisID + ":*"
	touched := 0
	iter := j.Redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if touchErr := j.Cache.Touch(ctx, iter.Val()); touchErr != nil {
			logger.Error("extend cache entry", slog.String("key", iter.Val()), slog.Any("error", touchErr))
			return touchErr
		}
		touched++
	}
	if iterErr := iter.Err(); iterErr != nil {
		logger.Error("scan cache entries", slog.Any("error", iterErr))
		return iterErr
	}

	logger.Info("cache refresh completed", slog.Int("entries", touched))
	return nil
}

func (j *CacheRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalysisCacheRefresh))
	}
	return slog.Default().With(slog.String("job", TaskAnalysisCacheRefresh))
}

func (j *CacheRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
