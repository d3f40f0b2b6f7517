package recommend

import (
	"context"

	"github.com/justestif/lastfm-recommender/internal/cache"
	"github.com/justestif/lastfm-recommender/internal/exclude"
)

// Service is the surface the HTTP layer calls.
type Service struct {
	engine     *Engine
	cache      *cache.Cache
	exclusions *exclude.Store
}

// NewService creates a Service. The exclusion store should be constructed
// with InvalidateOnExclude so that adding a name drops the cached set.
func NewService(engine *Engine, c *cache.Cache, exclusions *exclude.Store) *Service {
	return &Service{engine: engine, cache: c, exclusions: exclusions}
}

// InvalidateOnExclude returns an exclusion hook that deletes the cached
// recommendation set for user.
func InvalidateOnExclude(c *cache.Cache, user string) exclude.Option {
	key := cache.Key(CacheOp, user)
	return exclude.WithInvalidation(func(ctx context.Context) error {
		return c.Delete(ctx, key)
	})
}

// GetRecommendations returns a full set, or a single replacement record
// when isReplacement is set.
func (s *Service) GetRecommendations(ctx context.Context, isReplacement bool) ([]Record, error) {
	if isReplacement {
		return s.Replace(ctx, nil)
	}
	return s.engine.Select(ctx, Request{})
}

// Replace returns at most one record not named in skip.
func (s *Service) Replace(ctx context.Context, skip []string) ([]Record, error) {
	return s.engine.Select(ctx, Request{Replacement: true, Skip: skip})
}

// CacheExpiry returns the seconds until the cached set expires.
func (s *Service) CacheExpiry(ctx context.Context) int64 {
	return s.cache.Expiry(ctx, s.engine.CacheKey())
}

// AddToExcludeList excludes name from future results. It reports whether
// the list changed.
func (s *Service) AddToExcludeList(ctx context.Context, name string) (bool, error) {
	return s.exclusions.Add(ctx, name)
}

// ExcludeList returns the excluded names.
func (s *Service) ExcludeList(ctx context.Context) ([]string, error) {
	return s.exclusions.List(ctx)
}

// PurgeCache deletes every cached entry. Exclusions are kept.
func (s *Service) PurgeCache(ctx context.Context) error {
	return s.cache.Purge(ctx)
}

// TargetCount returns the size of a full set.
func (s *Service) TargetCount() int {
	return s.engine.TargetCount()
}
