package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthFeed/pkg/cache"
	"SynthFeed/pkg/metrics"
)

type fakeCommitter struct {
	messages []string
	paths    []string
	err      error
}

func (f *fakeCommitter) Sync(_ context.Context, message string, paths ...string) error {
	f.messages = append(f.messages, message)
	f.paths = paths
	return f.err
}

func TestSnapshotSaverSavesOncePerInterval(t *testing.T) {
	g := newTestFeed(t, []string{"AAPL"}, 1)
	require.NoError(t, g.Init(context.Background(), nil))
	store := &memSnapshotStore{}
	git := &fakeCommitter{}
	s := NewSnapshotSaver(g, store, time.Minute, metrics.Nop{}, nil, WithCommitter(git, "engine_state.json", "stock_history.json"))
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	for i, want := range []bool{true, false, false} {
		saved, err := s.MaybeSave(ctx, base.Add(time.Duration(i)*10*time.Second))
		require.NoError(t, err)
		assert.Equal(t, want, saved, "call %d", i)
	}
	saved, err := s.MaybeSave(ctx, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, saved, "new minute")

	assert.Equal(t, 2, store.saveCount())
	assert.Contains(t, store.states, "AAPL")
	assert.Equal(t, []string{"Data update 2024-01-01 12:00:30 UTC", "Data update 2024-01-01 12:01:00 UTC"}, git.messages)
	assert.Equal(t, []string{"engine_state.json", "stock_history.json"}, git.paths)
}

func TestSnapshotSaverErrors(t *testing.T) {
	g := newTestFeed(t, []string{"AAPL"}, 1)
	require.NoError(t, g.Init(context.Background(), nil))

	store := &memSnapshotStore{err: errors.New("disk full")}
	s := NewSnapshotSaver(g, store, time.Minute, metrics.Nop{}, nil)
	assert.ErrorIs(t, s.Save(context.Background(), time.Now()), store.err)

	git := &fakeCommitter{err: errors.New("push rejected")}
	s = NewSnapshotSaver(g, &memSnapshotStore{}, time.Minute, metrics.Nop{}, nil, WithCommitter(git))
	assert.ErrorIs(t, s.Save(context.Background(), time.Now()), git.err)
}

func TestSnapshotSaverLock(t *testing.T) {
	g := newTestFeed(t, []string{"AAPL"}, 1)
	require.NoError(t, g.Init(context.Background(), nil))
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	ctx := context.Background()

	store := &memSnapshotStore{}
	s := NewSnapshotSaver(g, store, time.Minute, metrics.Nop{}, nil, WithSaveLock(mc))

	ok, err := mc.TryLock(ctx, saveLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Save(ctx, time.Now()))
	assert.Zero(t, store.saveCount(), "held lock skips the save")

	require.NoError(t, mc.Unlock(ctx, saveLockKey))
	require.NoError(t, s.Save(ctx, time.Now()))
	assert.Equal(t, 1, store.saveCount())

	ok, err = mc.TryLock(ctx, saveLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released after save")
}

func TestSnapshotSaverFinalSaveOnCancel(t *testing.T) {
	g := newTestFeed(t, []string{"AAPL"}, 1)
	require.NoError(t, g.Init(context.Background(), nil))
	store := &memSnapshotStore{}
	s := NewSnapshotSaver(g, store, time.Minute, metrics.Nop{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.RunWith(ctx, make(chan time.Time))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.saveCount())
}
