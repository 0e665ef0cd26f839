package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Range is a closed [min,max] interval in YAML.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CandlesRPS      float64       `yaml:"candles_rps" default:"5"`
		CandlesBurst    int           `yaml:"candles_burst" default:"10"`
		CandlesIdle     time.Duration `yaml:"candles_idle" default:"10m"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"10"`
		MaxBackups int    `yaml:"max_backups" default:"3"`
		MaxAgeDays int    `yaml:"max_age_days" default:"28"`
		Compress   bool   `yaml:"compress" default:"true"`
	} `yaml:"logger"`
	Backend struct {
		Type string `yaml:"type" default:"none"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"synth.bars"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"synthfeed-bars"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"synthfeed"`
		Table            string        `yaml:"table" default:"synth_bars"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix" default:"synthfeed"`
		LatestTTL time.Duration `yaml:"latest_ttl" default:"1h"`
		PoolSize  int           `yaml:"pool_size" default:"10"`
		MinIdle   int           `yaml:"min_idle_conns" default:"2"`
	} `yaml:"redis"`
	Simulator struct {
		Symbols         []string      `yaml:"symbols"`
		InitialPrice    Range         `yaml:"initial_price"`
		Seed            int64         `yaml:"seed"`
		HistoryCapacity int           `yaml:"history_capacity" default:"259200"`
		SaveInterval    time.Duration `yaml:"save_interval" default:"1m"`
	} `yaml:"simulator"`
	// Model overrides the built-in model constants. Zero values keep the defaults.
	// Model overrides the built-in constants. Unset (nil) fields keep them,
	// so an explicit 0 (e.g. gamma: 0) is honoured.
	Model struct {
		Garch struct {
			Omega *float64 `yaml:"omega"`
			Alpha *float64 `yaml:"alpha"`
			Beta  *float64 `yaml:"beta"`
			Gamma *float64 `yaml:"gamma"`
		} `yaml:"garch"`
		VarianceFloor   *float64 `yaml:"variance_floor"`
		InitialVariance *float64 `yaml:"initial_variance"`
		DriftFactor     *float64 `yaml:"drift_factor"`
		Reversion       struct {
			S1 Range `yaml:"s1"`
			M1 Range `yaml:"m1"`
			M5 Range `yaml:"m5"`
			H1 Range `yaml:"h1"`
			D1 Range `yaml:"d1"`
		} `yaml:"reversion"`
	} `yaml:"model"`
	Snapshot struct {
		Backend     string `yaml:"backend" default:"file"`
		StateFile   string `yaml:"state_file" default:"engine_state.json"`
		HistoryFile string `yaml:"history_file" default:"stock_history.json"`
		SQLitePath  string `yaml:"sqlite_path" default:"synthfeed.db"`
	} `yaml:"snapshot"`
	Git struct {
		Enabled bool          `yaml:"enabled"`
		Dir     string        `yaml:"dir" default:"."`
		Push    bool          `yaml:"push" default:"true"`
		Timeout time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"git"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.Simulator.InitialPrice == (Range{}) {
		c.Simulator.InitialPrice = Range{Min: 50, Max: 200}
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Simulator.Symbols = splitList(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SNAPSHOT_BACKEND"); v != "" {
		c.Snapshot.Backend = v
	}
	if v := os.Getenv("SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse SEED: %w", err)
		}
		c.Simulator.Seed = seed
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty with backend 'kafka'")
		}
	case "clickhouse", "none":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Backend.Type)
	}

	if len(c.Simulator.Symbols) == 0 {
		return fmt.Errorf("simulator.symbols cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Simulator.Symbols))
	for _, s := range c.Simulator.Symbols {
		if s == "" {
			return fmt.Errorf("simulator.symbols contains an empty symbol")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("simulator.symbols contains duplicate %q", s)
		}
		seen[s] = struct{}{}
	}
	if p := c.Simulator.InitialPrice; !(p.Min > 0) || p.Min >= p.Max {
		return fmt.Errorf("simulator.initial_price must satisfy 0 < min < max, got (%v,%v)", p.Min, p.Max)
	}
	if c.Simulator.HistoryCapacity <= 0 {
		return fmt.Errorf("simulator.history_capacity must be > 0")
	}
	if c.Simulator.SaveInterval < time.Second {
		return fmt.Errorf("simulator.save_interval must be >= 1s")
	}

	switch c.Snapshot.Backend {
	case "file", "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required with snapshot backend 'redis'")
		}
	default:
		return fmt.Errorf("snapshot.backend must be 'file', 'redis' or 'sqlite', got '%s'", c.Snapshot.Backend)
	}
	if c.Git.Enabled && c.Snapshot.Backend == "redis" {
		return fmt.Errorf("git sync needs a file or sqlite snapshot backend")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
