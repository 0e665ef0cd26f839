package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	pkgkafka "SynthFeed/pkg/kafka"
)

// KafkaBarsHandler consumes bar messages and writes them to storage.
type KafkaBarsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, storage: storage, metrics: metrics}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// Handle decodes {symbol,t,o,h,l,c} and stores it. Malformed bars are returned
// as errors so the consumer routes them to the DLQ after retries.
func (h *KafkaBarsHandler) Handle(ctx context.Context, data []byte) error {
	var b models.Bar
	if err := json.Unmarshal(data, &b); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	if b.Symbol == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("decode bar: symbol missing")
	}
	if err := b.Validate(); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(b.Time()).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &b)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", b.Symbol)
	return nil
}
