package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	domrepo "SynthFeed/internal/domain/repository"
	mid "SynthFeed/internal/middleware"
	"SynthFeed/internal/services/stream"
	"SynthFeed/internal/usecase"
	"SynthFeed/pkg/config"
	xhttp "SynthFeed/pkg/http"
	pkgkafka "SynthFeed/pkg/kafka"
	applogger "SynthFeed/pkg/logger"
)

// Deps are the components the application runs. Optional ones may be nil.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Feed      *usecase.FeedGenerator
	Saver     *usecase.SnapshotSaver
	Store     domrepo.SnapshotStore
	Pipeline  *mid.RealtimePipeline
	Processor *usecase.BarProcessor
	Hub       *stream.Hub
	Consumer  *pkgkafka.Consumer
	Handler   pkgkafka.MessageHandler
	HTTP      xhttp.Handler
	Checks    map[string]xhttp.HealthCheck
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	l          *applogger.Logger
	httpServer *xhttp.Server

	feedCancel  context.CancelFunc
	saverCancel context.CancelFunc
	feedDone    chan struct{}
	saverDone   chan struct{}
	stopOnce    sync.Once
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{Deps: d, l: l}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.l.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+30*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start restores the feed and launches every background component.
func (a *App) Start(ctx context.Context) error {
	if err := a.Feed.Init(ctx, a.Store); err != nil {
		return fmt.Errorf("feed init: %w", err)
	}
	a.l.Info("feed initialised",
		applogger.Strings("symbols", a.Feed.Symbols()),
		applogger.String("snapshot_backend", a.Config.Snapshot.Backend))

	if a.Pipeline != nil {
		a.Pipeline.Start(context.WithoutCancel(ctx))
	}

	if a.Consumer != nil && a.Handler != nil {
		a.Consumer.RegisterHandler(a.Handler)
		if err := a.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.Handler.Topic()))
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.Config.Server.Port),
		xhttp.WithTimeouts(a.Config.Server.ReadTimeout, a.Config.Server.WriteTimeout, a.Config.Server.ShutdownTimeout),
	}
	if !a.Config.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(""))
	} else {
		opts = append(opts, xhttp.WithMetricsPath(a.Config.Metrics.Path))
	}
	for name, check := range a.Checks {
		opts = append(opts, xhttp.WithHealthCheck(name, check))
	}
	a.httpServer = xhttp.NewServer(a.HTTP, a.l, opts...)
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	// The feed and the saver get separate contexts so the final save sees the last tick.
	feedCtx, feedCancel := context.WithCancel(context.WithoutCancel(ctx))
	saverCtx, saverCancel := context.WithCancel(context.WithoutCancel(ctx))
	a.feedCancel, a.saverCancel = feedCancel, saverCancel
	a.feedDone, a.saverDone = make(chan struct{}), make(chan struct{})

	go func() {
		defer close(a.feedDone)
		if err := a.Feed.Run(feedCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.l.Error("feed stopped", applogger.Error(err))
		}
	}()
	go func() {
		defer close(a.saverDone)
		if a.Saver == nil {
			<-saverCtx.Done()
			return
		}
		if err := a.Saver.Run(saverCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.l.Error("snapshot saver stopped", applogger.Error(err))
		}
	}()
	return nil
}

// Shutdown stops the feed, writes the final snapshot and stops every component.
// Infrastructure clients are released by the injector cleanup. Safe to call twice.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.l.Info("shutting down")

		if a.feedCancel != nil {
			a.feedCancel()
			if err := wait(ctx, a.feedDone); err != nil {
				errs = append(errs, fmt.Errorf("feed stop: %w", err))
			}
			a.saverCancel()
			if err := wait(ctx, a.saverDone); err != nil {
				errs = append(errs, fmt.Errorf("final save: %w", err))
			}
		}

		if a.httpServer != nil {
			httpCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
			if err := a.httpServer.Stop(httpCtx); err != nil {
				a.l.Error("http shutdown error", applogger.Error(err))
				errs = append(errs, err)
			}
			cancel()
		}
		if a.Hub != nil {
			a.Hub.Close()
		}
		if a.Pipeline != nil {
			a.Pipeline.Stop()
		}
		if a.Consumer != nil {
			if err := a.Consumer.Stop(ctx); err != nil {
				a.l.Warn("kafka consumer stop error", applogger.Error(err))
			}
		}
		if a.Processor != nil {
			a.Processor.Close()
		}
		if a.Store != nil {
			if err := a.Store.Close(); err != nil {
				a.l.Warn("snapshot store close error", applogger.Error(err))
			}
		}
		a.l.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
