//go:build wireinject
// +build wireinject

package di

import (
	"SynthFeed/pkg/config"
	"SynthFeed/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideBarStorage,
		ProvideBarPublisher,
		ProvideHistory,
		ProvideLatestCache,
		ProvideSnapshotStore,

		// Model and use cases
		ProvideSimulator,
		ProvideBarProcessor,
		ProvidePipeline,
		ProvideHub,
		ProvideFeedGenerator,
		ProvideSnapshotSaver,
		ProvideCandlesUseCase,
		ProvideKafkaConsumer,
		ProvideKafkaBarsHandler,

		// HTTP
		ProvideBarsHandler,
		ProvideHealthChecks,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
