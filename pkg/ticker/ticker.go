package ticker

import (
	"sync"
	"time"
)

// Next returns the first whole second strictly after t, in UTC.
func Next(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second).Add(time.Second)
}

// SecondTicker delivers the wall-clock time at each whole UTC second.
// Like time.Ticker it drops ticks for slow receivers instead of queueing them.
type SecondTicker struct {
	C <-chan time.Time

	c    chan time.Time
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// Option configures SecondTicker.
type Option func(*SecondTicker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *SecondTicker) { t.now = now }
}

// NewSecondTicker starts a ticker. Call Stop to release it.
func NewSecondTicker(opts ...Option) *SecondTicker {
	c := make(chan time.Time, 1)
	t := &SecondTicker{
		C:    c,
		c:    c,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.loop()
	return t
}

func (t *SecondTicker) loop() {
	next := Next(t.now())
	timer := time.NewTimer(next.Sub(t.now()))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}

		select {
		case t.c <- next:
		default:
		}

		// Skip seconds already passed so a stalled process resumes on the current second.
		now := t.now()
		n := Next(now)
		if !n.After(next) {
			n = next.Add(time.Second)
		}
		next = n
		timer.Reset(next.Sub(now))
	}
}

// Stop turns the ticker off. C is not closed.
func (t *SecondTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}
