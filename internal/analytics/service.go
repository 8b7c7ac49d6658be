package analytics

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Service coordinates report computation with the cache layer. Concurrent
// requests for the same report variant collapse into one computation.
type Service struct {
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService wires a Cache helper; a nil cache disables caching but not
// deduplication.
func NewService(cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cache: cache, logger: logger}
}

// Report resolves a report variant through the cache, computing it with
// the supplied loader on a miss.
func (s *Service) Report(ctx context.Context, analysisID string, rate float64, filter Filter, compute func(context.Context) (*Report, error)) (*Report, error) {
	keyBase := keyReport(analysisID, rate, filter)
	key, err := s.cache.BuildKey(ctx, keyBase)
	if err != nil {
		return nil, err
	}

	value, err, shared := s.group.Do(key, func() (interface{}, error) {
		var report Report
		loader := func(ctx context.Context) (interface{}, error) {
			r, err := compute(ctx)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
		if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
			return nil, err
		}
		return &report, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("report request deduplicated", slog.String("key", key))
	}
	return value.(*Report), nil
}

// Invalidate bumps the cache version, orphaning every stored report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
