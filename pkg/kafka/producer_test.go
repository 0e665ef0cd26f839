package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")

	err := p.PublishBatch(context.Background(), "bars", []Message{
		{Key: []byte("A"), Value: map[string]int{"t": 1}},
		{Key: []byte("B"), Value: "raw"},
		{Key: []byte("C"), Value: []byte(`{"x":1}`)},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 3)

	assert.Equal(t, "bars", w.msgs[0].Topic)
	assert.Equal(t, []byte("A"), w.msgs[0].Key)
	assert.JSONEq(t, `{"t":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, `{"x":1}`, string(w.msgs[2].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerPublishPropagatesError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "snappy")

	err := p.Publish(context.Background(), "bars", []byte("A"), "x")
	assert.ErrorIs(t, err, boom)
}

func TestProducerEmptyBatch(t *testing.T) {
	w := &fakeWriter{err: errors.New("unused")}
	p := newProducer(w, "snappy")
	assert.NoError(t, p.PublishBatch(context.Background(), "bars", nil))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(100_000_000, 1_000_000_000, attempt)
		assert.Greater(t, int64(d), int64(0))
		assert.LessOrEqual(t, int64(d), int64(1_000_000_000))
	}
}

func TestProducerConfigValidate(t *testing.T) {
	cfg := defaultProducerConfig()
	WithBrokers([]string{"k:9092"})(cfg)
	WithBatching(0, 0, time.Second)(cfg)
	assert.NoError(t, cfg.validate())
	assert.Equal(t, 100, cfg.BatchSize, "zero keeps default")
	assert.Equal(t, time.Second, cfg.BatchTimeout)

	WithCompression("brotli")(cfg)
	assert.Error(t, cfg.validate())

	WithCompression("zstd")(cfg)
	WithRequiredAcks(2)(cfg)
	assert.Error(t, cfg.validate())
}
