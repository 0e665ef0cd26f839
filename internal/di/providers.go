package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SynthFeed/internal/domain/repository"
	"SynthFeed/internal/handler/api"
	mid "SynthFeed/internal/middleware"
	internalrepo "SynthFeed/internal/repository"
	"SynthFeed/internal/services/gitsync"
	"SynthFeed/internal/services/stream"
	"SynthFeed/internal/services/synth"
	"SynthFeed/internal/usecase"
	"SynthFeed/pkg/cache"
	pkgch "SynthFeed/pkg/clickhouse"
	"SynthFeed/pkg/config"
	xhttp "SynthFeed/pkg/http"
	pkgkafka "SynthFeed/pkg/kafka"
	applogger "SynthFeed/pkg/logger"
	"SynthFeed/pkg/metrics"
	"SynthFeed/pkg/ratelimit"
	"SynthFeed/pkg/server"
)

// ProvideLogger builds the application logger from the logger section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ModelParams starts from the built-in constants and applies every configured override.
func ModelParams(cfg *config.Config) synth.Params {
	p := synth.DefaultParams()
	m := cfg.Model

	setIf(&p.GARCH.Omega, m.Garch.Omega)
	setIf(&p.GARCH.Alpha, m.Garch.Alpha)
	setIf(&p.GARCH.Beta, m.Garch.Beta)
	setIf(&p.GARCH.Gamma, m.Garch.Gamma)
	setIf(&p.VarianceFloor, m.VarianceFloor)
	setIf(&p.InitialVariance, m.InitialVariance)
	setIf(&p.DriftFactor, m.DriftFactor)

	setRange(&p.Reversion.S1, m.Reversion.S1)
	setRange(&p.Reversion.M1, m.Reversion.M1)
	setRange(&p.Reversion.M5, m.Reversion.M5)
	setRange(&p.Reversion.H1, m.Reversion.H1)
	setRange(&p.Reversion.D1, m.Reversion.D1)
	return p
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setRange(dst *synth.Range, r config.Range) {
	if r != (config.Range{}) {
		*dst = synth.Range{Min: r.Min, Max: r.Max}
	}
}

// ProvideSimulator validates the model parameters.
func ProvideSimulator(cfg *config.Config) (*synth.Simulator, error) {
	sim, err := synth.NewSimulator(ModelParams(cfg))
	if err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	return sim, nil
}

// ProvideRedisCache connects to Redis when it is enabled or backs the snapshots.
// It returns nil otherwise.
func ProvideRedisCache(cfg *config.Config, l *applogger.Logger) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled && cfg.Snapshot.Backend != "redis" {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis connected", applogger.String("addr", cfg.Redis.Addr))
	cleanup := func() {
		if err := rc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return rc, cleanup, nil
}

// ProvideClickHouseClient connects when bars are stored in or consumed into ClickHouse.
// It returns nil otherwise.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if cfg.Backend.Type != usecase.BackendClickHouse && !cfg.Kafka.Consumer.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	l.Info("clickhouse connected", applogger.String("database", cfg.ClickHouse.Database))
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideKafkaProducer creates a producer for backend "kafka"; nil otherwise.
// The producer is closed through the publisher.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBarStorage creates the ClickHouse bar table; nil without a client.
func ProvideBarStorage(client *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseStorage(client, cfg.ClickHouse.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideBarPublisher wraps the producer; nil without one.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvideBarProcessor(pub repository.Publisher, store repository.Storage, m repository.Metrics, cfg *config.Config) (*usecase.BarProcessor, error) {
	return usecase.NewBarProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvidePipeline sits between the generator and the backend; nil for backend "none".
func ProvidePipeline(proc *usecase.BarProcessor, m repository.Metrics, l *applogger.Logger) *mid.RealtimePipeline {
	if proc.Backend() == usecase.BackendNone {
		return nil
	}
	return mid.NewRealtimePipeline(proc, m,
		mid.WithBufferSize(2000),
		mid.WithPipelineLogger(l),
	)
}

func ProvideHub(l *applogger.Logger) *stream.Hub {
	return stream.NewHub(l)
}

func ProvideHistory(cfg *config.Config) repository.BarHistory {
	return internalrepo.NewHistory(cfg.Simulator.HistoryCapacity)
}

// ProvideLatestCache mirrors the newest bar per symbol into Redis; nil without Redis.
func ProvideLatestCache(rc *cache.RedisCache, cfg *config.Config) repository.LatestCache {
	if rc == nil {
		return nil
	}
	return internalrepo.NewCacheLatestStore(rc, cfg.Redis.LatestTTL)
}

// ProvideSnapshotStore selects the persistence backend for states and history.
func ProvideSnapshotStore(cfg *config.Config, rc *cache.RedisCache) (repository.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "file":
		return internalrepo.NewFileSnapshotStore(cfg.Snapshot.StateFile, cfg.Snapshot.HistoryFile), nil
	case "sqlite":
		store, err := internalrepo.NewSQLiteSnapshotStore(cfg.Snapshot.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite snapshot store: %w", err)
		}
		return store, nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis snapshot store: redis not connected")
		}
		return internalrepo.NewCacheSnapshotStore(rc), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func ProvideFeedGenerator(
	sim *synth.Simulator,
	cfg *config.Config,
	history repository.BarHistory,
	m repository.Metrics,
	l *applogger.Logger,
	pipe *mid.RealtimePipeline,
	hub *stream.Hub,
	latest repository.LatestCache,
) (*usecase.FeedGenerator, error) {
	opts := []usecase.FeedOption{usecase.WithBroadcaster(hub)}
	if pipe != nil {
		opts = append(opts, usecase.WithBarSink(pipe))
	}
	if latest != nil {
		opts = append(opts, usecase.WithLatestCache(latest))
	}
	return usecase.NewFeedGenerator(sim, usecase.FeedConfig{
		Symbols:  cfg.Simulator.Symbols,
		PriceMin: cfg.Simulator.InitialPrice.Min,
		PriceMax: cfg.Simulator.InitialPrice.Max,
		Seed:     cfg.Simulator.Seed,
	}, history, m, l, opts...)
}

// ProvideSnapshotSaver wires the optional git committer and the Redis save lock.
func ProvideSnapshotSaver(
	feed *usecase.FeedGenerator,
	store repository.SnapshotStore,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
	rc *cache.RedisCache,
) *usecase.SnapshotSaver {
	var opts []usecase.SaverOption
	if cfg.Git.Enabled {
		repo := gitsync.New(cfg.Git.Dir,
			gitsync.WithPush(cfg.Git.Push),
			gitsync.WithTimeout(cfg.Git.Timeout),
		)
		opts = append(opts, usecase.WithCommitter(repo, snapshotPaths(cfg)...))
	}
	if rc != nil {
		opts = append(opts, usecase.WithSaveLock(rc))
	}
	return usecase.NewSnapshotSaver(feed, store, cfg.Simulator.SaveInterval, m, l, opts...)
}

func snapshotPaths(cfg *config.Config) []string {
	if cfg.Snapshot.Backend == "sqlite" {
		return []string{cfg.Snapshot.SQLitePath}
	}
	return []string{cfg.Snapshot.StateFile, cfg.Snapshot.HistoryFile}
}

// ProvideCandlesUseCase reads candles from ClickHouse; nil without a client.
func ProvideCandlesUseCase(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) *usecase.CandlesUseCase {
	if client == nil {
		return nil
	}
	return usecase.NewCandlesUseCase(internalrepo.NewCHCandleStore(client, cfg.ClickHouse.Table, l))
}

// ProvideBarsHandler registers candles only with a candle store. Its per-client
// limiter is swept in the background until cleanup.
func ProvideBarsHandler(
	l *applogger.Logger,
	feed *usecase.FeedGenerator,
	hub *stream.Hub,
	candles *usecase.CandlesUseCase,
	cfg *config.Config,
) (*api.BarsEchoHandler, func()) {
	opts := []api.BarsOption{api.WithStream(hub)}
	cleanup := func() {}
	if candles != nil {
		rl := ratelimit.New(cfg.Server.CandlesRPS, cfg.Server.CandlesBurst)
		ctx, cancel := context.WithCancel(context.Background())
		go rl.Sweep(ctx, time.Minute, cfg.Server.CandlesIdle)
		cleanup = cancel
		opts = append(opts, api.WithCandles(candles, rl))
	}
	return api.NewBarsEchoHandler(l, feed, opts...), cleanup
}

// ProvideKafkaConsumer creates the bars consumer when enabled; nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, err error) {
			m.RecordError("kafka_consume")
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err))
		},
	})
	return consumer, nil
}

// ProvideKafkaBarsHandler stores consumed bars in ClickHouse; nil without storage.
func ProvideKafkaBarsHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topic, store, m)
}

// ProvideHealthChecks reports every connected dependency on /healthz.
func ProvideHealthChecks(client *pkgch.Client, rc *cache.RedisCache) map[string]xhttp.HealthCheck {
	checks := map[string]xhttp.HealthCheck{}
	if client != nil {
		checks["clickhouse"] = client.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	return checks
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	feed *usecase.FeedGenerator,
	saver *usecase.SnapshotSaver,
	store repository.SnapshotStore,
	pipe *mid.RealtimePipeline,
	proc *usecase.BarProcessor,
	hub *stream.Hub,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	bars *api.BarsEchoHandler,
	checks map[string]xhttp.HealthCheck,
) *server.App {
	d := server.Deps{
		Config:    cfg,
		Logger:    l,
		Feed:      feed,
		Saver:     saver,
		Store:     store,
		Pipeline:  pipe,
		Processor: proc,
		Hub:       hub,
		Consumer:  consumer,
		HTTP:      bars,
		Checks:    checks,
	}
	if kh != nil {
		d.Handler = kh
	}
	return server.New(d)
}
