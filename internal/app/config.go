package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// RedisAddr is optional; an empty value disables caching and jobs.
	RedisAddr string        `envconfig:"REDIS_ADDR" default:""`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"15m"`

	UploadMaxBytes    int64   `envconfig:"UPLOAD_MAX_BYTES" default:"20971520"`
	AnalysisRetention int     `envconfig:"ANALYSIS_RETENTION" default:"50"`
	DefaultCUPRate    float64 `envconfig:"DEFAULT_CUP_RATE" default:"400"`

	// CacheSweepSpec is the cron expression for the stale-entry sweep.
	CacheSweepSpec string `envconfig:"CACHE_SWEEP_SPEC" default:"*/30 * * * *"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DefaultCUPRate <= 0 {
		return nil, errors.New("default CUP rate must be positive")
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, errors.New("upload size limit must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
