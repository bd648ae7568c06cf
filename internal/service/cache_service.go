package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/clinic-scheduling-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Version(ctx context.Context, versionKey string) (int64, error)
	BumpVersion(ctx context.Context, versionKey string) error
	SetIfVersion(ctx context.Context, versionKey string, version int64, key string, value interface{}, ttl time.Duration) (bool, error)
}

// CacheService wraps the cache repository with metrics and makes every call a no-op when disabled.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get reports whether key was found and decoded into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Version reads the generation counter guarding a family of keys. ok is false when
// caching is off or the counter could not be read, in which case callers skip the write.
func (s *CacheService) Version(ctx context.Context, versionKey string) (version int64, ok bool) {
	if !s.Enabled() {
		return 0, false
	}
	version, err := s.repo.Version(ctx, versionKey)
	if err != nil {
		s.logger.Warn("cache version read failed", zap.String("key", versionKey), zap.Error(err))
		return 0, false
	}
	return version, true
}

// SetIfVersion stores the value only if no invalidation bumped versionKey since version was read.
func (s *CacheService) SetIfVersion(ctx context.Context, versionKey string, version int64, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	stored, err := s.repo.SetIfVersion(ctx, versionKey, version, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache guarded set failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if !stored {
		s.logger.Debug("cache write skipped after invalidation", zap.String("key", key))
	}
	return stored, nil
}

// InvalidateVersioned bumps versionKey and then removes cached values matching pattern.
func (s *CacheService) InvalidateVersioned(ctx context.Context, versionKey, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.BumpVersion(ctx, versionKey); err != nil {
		s.logger.Warn("cache version bump failed", zap.String("key", versionKey), zap.Error(err))
	}
	return s.Invalidate(ctx, pattern)
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}
