package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
simulator:
  symbols: [AAA, BBB]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "none", c.Backend.Type)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 10*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, Range{Min: 50, Max: 200}, c.Simulator.InitialPrice)
	assert.Equal(t, 259200, c.Simulator.HistoryCapacity)
	assert.Equal(t, time.Minute, c.Simulator.SaveInterval)
	assert.Equal(t, "file", c.Snapshot.Backend)
	assert.Equal(t, "engine_state.json", c.Snapshot.StateFile)
	assert.Equal(t, "stock_history.json", c.Snapshot.HistoryFile)
	assert.Equal(t, "synth_bars", c.ClickHouse.Table)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: test
simulator:
  symbols: [AAA]
`)
	t.Setenv("SYMBOLS", "X1, X2,,X3")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_TOPIC", "bars")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SNAPSHOT_BACKEND", "redis")
	t.Setenv("SEED", "42")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"X1", "X2", "X3"}, c.Simulator.Symbols)
	assert.Equal(t, "kafka", c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "bars", c.Kafka.Topic)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis", c.Snapshot.Backend)
	assert.Equal(t, int64(42), c.Simulator.Seed)
}

func TestLoadWithEnvBadSeed(t *testing.T) {
	path := writeConfig(t, "environment: test\nsimulator:\n  symbols: [AAA]\n")
	t.Setenv("SEED", "abc")

	_, err := LoadWithEnv(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no symbols", "environment: test\n"},
		{"duplicate symbols", "environment: test\nsimulator:\n  symbols: [A, A]\n"},
		{"bad backend", "environment: test\nbackend:\n  type: s3\nsimulator:\n  symbols: [A]\n"},
		{"kafka without brokers", "environment: test\nbackend:\n  type: kafka\nsimulator:\n  symbols: [A]\n"},
		{"inverted price range", "environment: test\nsimulator:\n  symbols: [A]\n  initial_price: {min: 10, max: 5}\n"},
		{"bad snapshot backend", "environment: test\nsimulator:\n  symbols: [A]\nsnapshot:\n  backend: s3\n"},
		{"git with redis snapshots", "environment: test\nsimulator:\n  symbols: [A]\nsnapshot:\n  backend: redis\ngit:\n  enabled: true\n"},
		{"empty environment", "environment: \"\"\nsimulator:\n  symbols: [A]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
