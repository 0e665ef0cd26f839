package repository

import (
	"context"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
	pkgkafka "SynthFeed/pkg/kafka"
)

// KafkaPublisher publishes bars as JSON keyed by symbol, so one symbol stays on one partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ repository.Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, b *models.Bar) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), b)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, bars []*models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(bars))
	for _, b := range bars {
		if b == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(b.Symbol), Value: b})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
