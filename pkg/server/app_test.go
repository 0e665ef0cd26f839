package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "SynthFeed/internal/repository"
	"SynthFeed/internal/services/stream"
	"SynthFeed/internal/services/synth"
	"SynthFeed/internal/usecase"
	"SynthFeed/pkg/config"
	"SynthFeed/pkg/metrics"
)

func TestApp_StartShutdownWritesFinalSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("runs on the wall clock")
	}

	var cfg config.Config
	require.NoError(t, defaults.Set(&cfg))
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Simulator.Symbols = []string{"AAA"}
	dir := t.TempDir()
	statePath := filepath.Join(dir, "engine_state.json")
	historyPath := filepath.Join(dir, "stock_history.json")

	sim, err := synth.NewSimulator(synth.DefaultParams())
	require.NoError(t, err)
	m := metrics.Nop{}
	hub := stream.NewHub(nil)
	feed, err := usecase.NewFeedGenerator(sim,
		usecase.FeedConfig{Symbols: cfg.Simulator.Symbols, PriceMin: 100, PriceMax: 100, Seed: 1},
		internalrepo.NewHistory(100), m, nil, usecase.WithBroadcaster(hub))
	require.NoError(t, err)
	store := internalrepo.NewFileSnapshotStore(statePath, historyPath)
	saver := usecase.NewSnapshotSaver(feed, store, time.Hour, m, nil)

	app := New(Deps{
		Config: &cfg,
		Feed:   feed,
		Saver:  saver,
		Store:  store,
		Hub:    hub,
	})
	require.NoError(t, app.Start(context.Background()))
	_, bars := hub.Subscribe("AAA", 8)

	select {
	case b := <-bars:
		assert.Equal(t, "AAA", b.Symbol)
	case <-time.After(3 * time.Second):
		t.Fatal("no bar within 3s")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx), "second shutdown is a no-op")

	assert.Zero(t, hub.Len(), "hub closed on shutdown")

	restored := internalrepo.NewFileSnapshotStore(statePath, historyPath)
	states, err := restored.LoadStates(ctx)
	require.NoError(t, err)
	require.Contains(t, states, "AAA")
	history, err := restored.LoadHistory(ctx)
	require.NoError(t, err)
	last := history["AAA"][len(history["AAA"])-1]
	latest, ok := feed.Latest("AAA")
	require.True(t, ok)
	assert.Equal(t, latest.Timestamp, last.Timestamp, "final save holds the last emitted bar")
	assert.Equal(t, latest.Close, last.Close)
}
