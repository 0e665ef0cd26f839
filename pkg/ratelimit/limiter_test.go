package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllowBurstThenRefill(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(2, 3, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "burst token %d", i)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	clk.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clk.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"), "refill is capped at burst")
}

func TestPrune(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(1, 1, WithClock(clk.Now))
	l.Allow("a")
	clk.Advance(time.Minute)
	l.Allow("b")

	assert.Equal(t, 1, l.Prune(30*time.Second))
	assert.Equal(t, 0, l.Prune(30*time.Second))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(1, 1, WithClock(clk.Now))
	l.Allow("10.0.0.1:candles")
	l.Allow("10.0.0.2:candles")
	clk.Advance(time.Hour)
	assert.Equal(t, 2, l.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Sweep(ctx, time.Millisecond, time.Minute)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
