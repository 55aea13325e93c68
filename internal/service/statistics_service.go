package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/munify/munify-api/internal/dto"
	appErrors "github.com/munify/munify-api/pkg/errors"
)

const statisticsCacheKey = "munify:statistics:platform"

type statisticsStore interface {
	PlatformStatistics(ctx context.Context) (*dto.PlatformStatistics, error)
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// StatisticsService serves the cached marketplace snapshot. The cache is
// read-through with a short TTL; staleness is bounded, not zero.
type StatisticsService struct {
	repo   statisticsStore
	cache  statisticsCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatisticsService constructs StatisticsService.
func NewStatisticsService(repo statisticsStore, cache statisticsCache, ttl time.Duration, logger *zap.Logger) *StatisticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Platform returns the marketplace statistics, from cache when fresh.
func (s *StatisticsService) Platform(ctx context.Context) (*dto.PlatformStatistics, error) {
	if s.cache != nil {
		var cached dto.PlatformStatistics
		err := s.cache.Get(ctx, statisticsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("statistics cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.PlatformStatistics(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statisticsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Invalidate drops the cached snapshot so the next read recomputes.
func (s *StatisticsService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeleteByPattern(ctx, statisticsCacheKey); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate statistics cache")
	}
	return nil
}
