package usecase

import (
	"context"
	"fmt"
	"time"

	"SynthFeed/internal/domain/models"
	drepo "SynthFeed/internal/domain/repository"
)

// Backend names accepted by BarProcessor.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// BarProcessor routes emitted bars to the configured backend.
type BarProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewBarProcessor creates a processor. pub is required for "kafka", store for "clickhouse".
func NewBarProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) (*BarProcessor, error) {
	switch backend {
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("backend %s: publisher is nil", backend)
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("backend %s: storage is nil", backend)
		}
	case BackendNone:
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	return &BarProcessor{pub: pub, store: store, metrics: metrics, backend: backend}, nil
}

// Backend returns the configured backend name.
func (p *BarProcessor) Backend() string { return p.backend }

// Process routes a single bar. With backend "none" the bar is dropped.
func (p *BarProcessor) Process(ctx context.Context, b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("bar is nil")
	}
	start := time.Now()

	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, b)
	case BackendClickHouse:
		err = p.store.Store(ctx, b)
	default:
		return nil
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process bar: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, b.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes several bars in one backend call.
func (p *BarProcessor) ProcessBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, bars)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, bars)
	default:
		return nil
	}
	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, b := range bars {
		p.metrics.RecordMessageSent(p.backend, b.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *BarProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
