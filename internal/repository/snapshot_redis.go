package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
	"SynthFeed/pkg/cache"
)

const (
	stateKeyPrefix   = "state"
	historyKeyPrefix = "history"
)

// CacheSnapshotStore keeps one JSON value per symbol under state:<symbol> and history:<symbol>.
// Values never expire.
type CacheSnapshotStore struct {
	c cache.Service
}

func NewCacheSnapshotStore(c cache.Service) *CacheSnapshotStore {
	return &CacheSnapshotStore{c: c}
}

var _ repository.SnapshotStore = (*CacheSnapshotStore)(nil)

func (s *CacheSnapshotStore) SaveStates(ctx context.Context, states map[string]*models.StateSnapshot) error {
	if len(states) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(states))
	for sym, snap := range states {
		values[cache.GenerateKey(stateKeyPrefix, sym)] = snap
	}
	if err := s.c.MSet(ctx, values, 0); err != nil {
		return fmt.Errorf("save states: %w", err)
	}
	return nil
}

func (s *CacheSnapshotStore) LoadStates(ctx context.Context) (map[string]*models.StateSnapshot, error) {
	keys, err := s.c.Keys(ctx, cache.BuildPattern(stateKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	out := make(map[string]*models.StateSnapshot, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	raw, err := s.c.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	for key, val := range raw {
		sym := strings.TrimPrefix(key, stateKeyPrefix+":")
		snap, err := models.DecodeStateSnapshot([]byte(val))
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", sym, err)
		}
		snap.Symbol = sym
		out[sym] = snap
	}
	return out, nil
}

func (s *CacheSnapshotStore) SaveHistory(ctx context.Context, history map[string][]models.Bar) error {
	for sym, bars := range history {
		if err := s.c.Set(ctx, cache.GenerateKey(historyKeyPrefix, sym), bars, 0); err != nil {
			return fmt.Errorf("save history %s: %w", sym, err)
		}
	}
	return nil
}

func (s *CacheSnapshotStore) LoadHistory(ctx context.Context) (map[string][]models.Bar, error) {
	keys, err := s.c.Keys(ctx, cache.BuildPattern(historyKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make(map[string][]models.Bar, len(keys))
	for _, key := range keys {
		var bars []models.Bar
		if err := s.c.Get(ctx, key, &bars); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return nil, fmt.Errorf("load history %s: %w", key, err)
		}
		out[strings.TrimPrefix(key, historyKeyPrefix+":")] = bars
	}
	return out, nil
}

// Close does not close the shared cache.
func (s *CacheSnapshotStore) Close() error { return nil }
