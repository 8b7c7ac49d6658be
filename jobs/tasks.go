package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalysisCacheRefresh re-extends report cache TTLs for one analysis.
	TaskAnalysisCacheRefresh = "analysis:cache_refresh"
	// TaskAnalysisCacheSweep removes report cache entries whose version is stale.
	TaskAnalysisCacheSweep = "analysis:cache_sweep"
)

// CacheRefreshPayload identifies the analysis whose cached reports should
// be kept warm.
type CacheRefreshPayload struct {
	AnalysisID string `json:"analysis_id"`
}

// NewCacheRefreshTask constructs an Asynq task.
func NewCacheRefreshTask(payload CacheRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalysisCacheRefresh, data), nil
}

// NewCacheSweepTask constructs the scheduled sweep task. It carries no
// payload.
func NewCacheSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAnalysisCacheSweep, nil)
}
