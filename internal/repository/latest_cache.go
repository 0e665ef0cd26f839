package repository

import (
	"context"
	"time"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
	"SynthFeed/pkg/cache"
)

const latestKeyPrefix = "latest"

// CacheLatestStore writes the newest bar per symbol to latest:<symbol>.
type CacheLatestStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheLatestStore(c cache.Service, ttl time.Duration) *CacheLatestStore {
	return &CacheLatestStore{c: c, ttl: ttl}
}

var _ repository.LatestCache = (*CacheLatestStore)(nil)

func (s *CacheLatestStore) SetLatest(ctx context.Context, b *models.Bar) error {
	return s.c.Set(ctx, cache.GenerateKey(latestKeyPrefix, b.Symbol), b, s.ttl)
}

// GetLatest returns cache.ErrCacheMiss when no bar is stored.
func (s *CacheLatestStore) GetLatest(ctx context.Context, symbol string) (*models.Bar, error) {
	var b models.Bar
	if err := s.c.Get(ctx, cache.GenerateKey(latestKeyPrefix, symbol), &b); err != nil {
		return nil, err
	}
	return &b, nil
}
