package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	applogger "SynthFeed/pkg/logger"
	"SynthFeed/pkg/ticker"
)

const saveLockKey = "lock:snapshot"

// SnapshotSource exposes the feed state to persist as one consistent cut.
type SnapshotSource interface {
	Snapshot() (map[string]*models.StateSnapshot, map[string][]models.Bar)
}

// Committer publishes saved snapshot files, e.g. to a git remote.
type Committer interface {
	Sync(ctx context.Context, message string, paths ...string) error
}

// Locker is a best-effort lock shared by replicas writing the same store.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// SnapshotSaver persists the feed whenever the wall clock enters a new save interval.
type SnapshotSaver struct {
	src      SnapshotSource
	store    domrepo.SnapshotStore
	interval time.Duration
	metrics  domrepo.Metrics
	l        *applogger.Logger

	committer Committer
	paths     []string
	locker    Locker

	mu         sync.Mutex
	lastBucket time.Time
}

type SaverOption func(*SnapshotSaver)

// WithCommitter syncs paths through c after every save.
func WithCommitter(c Committer, paths ...string) SaverOption {
	return func(s *SnapshotSaver) {
		s.committer = c
		s.paths = paths
	}
}

// WithSaveLock skips a save while another holder owns the lock.
func WithSaveLock(l Locker) SaverOption {
	return func(s *SnapshotSaver) { s.locker = l }
}

func NewSnapshotSaver(src SnapshotSource, store domrepo.SnapshotStore, interval time.Duration, metrics domrepo.Metrics, l *applogger.Logger, opts ...SaverOption) *SnapshotSaver {
	if interval < time.Second {
		interval = time.Minute
	}
	if l == nil {
		l = applogger.Nop()
	}
	s := &SnapshotSaver{src: src, store: store, interval: interval, metrics: metrics, l: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaybeSave saves when now falls in a different interval than the previous save.
// The first call always saves.
func (s *SnapshotSaver) MaybeSave(ctx context.Context, now time.Time) (bool, error) {
	bucket := now.UTC().Truncate(s.interval)
	s.mu.Lock()
	if bucket.Equal(s.lastBucket) {
		s.mu.Unlock()
		return false, nil
	}
	s.lastBucket = bucket
	s.mu.Unlock()

	return true, s.Save(ctx, now)
}

// Save writes states and history, then runs the committer if configured.
func (s *SnapshotSaver) Save(ctx context.Context, now time.Time) error {
	start := time.Now()
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, saveLockKey, s.interval)
		if err != nil {
			return fmt.Errorf("snapshot lock: %w", err)
		}
		if !ok {
			s.l.Debug("snapshot lock held elsewhere, skipping save")
			return nil
		}
		defer func() { _ = s.locker.Unlock(context.WithoutCancel(ctx), saveLockKey) }()
	}

	states, history := s.src.Snapshot()
	if err := s.store.SaveStates(ctx, states); err != nil {
		s.metrics.RecordError("snapshot_states")
		return fmt.Errorf("save states: %w", err)
	}
	if err := s.store.SaveHistory(ctx, history); err != nil {
		s.metrics.RecordError("snapshot_history")
		return fmt.Errorf("save history: %w", err)
	}
	s.metrics.RecordLatency("snapshot_save", time.Since(start).Seconds())
	s.l.Info("snapshot saved",
		applogger.Int("symbols", len(states)),
		applogger.Duration("duration_ms", time.Since(start)),
	)

	if s.committer != nil {
		msg := "Data update " + now.UTC().Format("2006-01-02 15:04:05") + " UTC"
		if err := s.committer.Sync(ctx, msg, s.paths...); err != nil {
			s.metrics.RecordError("snapshot_git")
			return fmt.Errorf("git sync: %w", err)
		}
	}
	return nil
}

// Run checks once per second until ctx is done, then performs a final save.
func (s *SnapshotSaver) Run(ctx context.Context) error {
	t := ticker.NewSecondTicker()
	defer t.Stop()
	return s.RunWith(ctx, t.C)
}

// RunWith checks on every value from ticks. Save failures are logged and retried
// at the next interval.
func (s *SnapshotSaver) RunWith(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			err := s.Save(final, time.Now())
			cancel()
			if err != nil {
				s.l.Error("final snapshot save failed", applogger.Error(err))
			}
			return ctx.Err()
		case now := <-ticks:
			if _, err := s.MaybeSave(ctx, now); err != nil {
				s.l.Error("snapshot save failed", applogger.Error(err))
			}
		}
	}
}
