package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	applogger "SynthFeed/pkg/logger"
)

// ErrStaleBar is returned for a bar whose timestamp does not advance its symbol.
var ErrStaleBar = errors.New("pipeline: bar timestamp not increasing")

const (
	minRetryBackoff = 50 * time.Millisecond
	maxRetryBackoff = 2 * time.Second
	maxRetryBatch   = 500
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, b *models.Bar) error
	ProcessBatch(ctx context.Context, bars []*models.Bar) error
}

// RealtimePipeline sits between the feed generator and the backend processor.
// It validates bars, keeps each symbol's timestamps strictly increasing and
// buffers bars the backend rejected for background retry.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	l       *applogger.Logger
	bufSize int
	bufCh   chan *models.Bar
	stopCh  chan struct{}
	done    chan struct{}
	started bool

	mu     sync.Mutex
	lastTS map[string]int64 // per-symbol last accepted timestamp
}

type PipelineOption func(*RealtimePipeline)

// WithBufferSize sets the retry buffer size used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:    proc,
		metrics: metrics,
		l:       applogger.Nop(),
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		lastTS:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Bar, p.bufSize)
	return p
}

// Start launches background retry of buffered bars. A stopped pipeline cannot be restarted.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.retryLoop(ctx)
}

// retryLoop flushes buffered bars in batches. A failed batch is kept and
// retried with backoff before any newer bar is taken from the buffer.
func (p *RealtimePipeline) retryLoop(ctx context.Context) {
	defer close(p.done)
	backoff := minRetryBackoff
	var pending []*models.Bar
	for {
		if len(pending) == 0 {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case b := <-p.bufCh:
				pending = append(pending, b)
			}
		}
		pending = p.drain(pending)

		start := time.Now()
		err := p.proc.ProcessBatch(ctx, pending)
		if err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			pending = pending[:0]
			backoff = minRetryBackoff
			continue
		}
		p.metrics.RecordError("pipeline_flush")
		p.l.Debug("pipeline retry failed",
			applogger.Int("bars", len(pending)),
			applogger.Duration("backoff_ms", backoff),
			applogger.Error(err),
		)

		select {
		case <-p.stopCh:
			p.dropped(len(pending))
			return
		case <-ctx.Done():
			p.dropped(len(pending))
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

// drain moves buffered bars into batch without blocking, up to maxRetryBatch.
func (p *RealtimePipeline) drain(batch []*models.Bar) []*models.Bar {
	for len(batch) < maxRetryBatch {
		select {
		case b := <-p.bufCh:
			batch = append(batch, b)
		default:
			return batch
		}
	}
	return batch
}

func (p *RealtimePipeline) dropped(n int) {
	if n > 0 {
		p.l.Warn("pipeline dropped unsent bars", applogger.Int("count", n))
	}
}

// Stop stops the background retry and waits for it to exit.
// Bars still buffered are dropped and counted.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.done
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("pipeline stopped with buffered bars", applogger.Int("count", n))
	}
}

// Buffered returns the number of bars awaiting retry.
func (p *RealtimePipeline) Buffered() int {
	return len(p.bufCh)
}

// Process validates and forwards a bar, buffering it when downstream fails.
func (p *RealtimePipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()
	if err := validateBar(b); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.advance(b.Symbol, b.Timestamp) {
		p.metrics.RecordError("pipeline_stale")
		return fmt.Errorf("%w: %s t=%d", ErrStaleBar, b.Symbol, b.Timestamp)
	}

	if err := p.proc.Process(ctx, b); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(b)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) enqueue(b *models.Bar) {
	select {
	case p.bufCh <- b:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

func (p *RealtimePipeline) advance(symbol string, ts int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastTS[symbol]; ok && ts <= last {
		return false
	}
	p.lastTS[symbol] = ts
	return true
}

func validateBar(b *models.Bar) error {
	if b == nil {
		return fmt.Errorf("bar nil")
	}
	if b.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	return b.Validate()
}
