package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthFeed/internal/domain/models"
)

func bar(sym string, ts int64) models.Bar {
	b := models.NewBar(ts, 100, 101)
	b.Symbol = sym
	return b
}

func TestHub_FiltersBySymbol(t *testing.T) {
	h := NewHub(nil)
	_, all := h.Subscribe("", 4)
	_, only := h.Subscribe("AAA", 4)

	h.Broadcast(bar("AAA", 1000))
	h.Broadcast(bar("BBB", 1000))

	require.Len(t, all, 2)
	require.Len(t, only, 1)
	got := <-only
	assert.Equal(t, "AAA", got.Symbol)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	_, slow := h.Subscribe("", 1)
	_, fast := h.Subscribe("", 8)

	h.Broadcast(bar("AAA", 1000))
	h.Broadcast(bar("AAA", 2000))

	assert.Equal(t, 1, h.Len())
	b, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, int64(1000), b.Timestamp)
	_, ok = <-slow
	assert.False(t, ok, "slow subscriber channel must be closed")
	assert.Len(t, fast, 2)
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	id, ch := h.Subscribe("AAA", 0)
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())

	h.Broadcast(bar("AAA", 1000))
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	_, a := h.Subscribe("", 1)
	_, b := h.Subscribe("BBB", 1)
	h.Close()
	_, okA := <-a
	_, okB := <-b
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Zero(t, h.Len())
}
