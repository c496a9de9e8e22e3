package clock

import (
	"context"
	"sync"
	"time"

	"github.com/viant/triage/model"
)

// NowFunc returns current wall time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Clock is a monotonically advancing logical clock. Goroutines wait on it
// with WaitUntil or Sleep and are woken when it advances.
type Clock struct {
	mu          sync.Mutex
	now         model.Tick
	ticksPerDay model.Tick
	changed     chan struct{}
}

// New creates a clock at tick zero.
func New(ticksPerDay int) *Clock {
	if ticksPerDay <= 0 {
		ticksPerDay = 1
	}
	return &Clock{ticksPerDay: model.Tick(ticksPerDay), changed: make(chan struct{})}
}

// Now returns the current tick.
func (c *Clock) Now() model.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TicksPerDay returns the configured day length.
func (c *Clock) TicksPerDay() model.Tick { return c.ticksPerDay }

// Day returns the current day, starting at zero.
func (c *Clock) Day() int { return c.DayOf(c.Now()) }

// DayOf returns the day a tick belongs to.
func (c *Clock) DayOf(t model.Tick) int {
	if t < 0 {
		return 0
	}
	return int(t / c.ticksPerDay)
}

// StartOf returns the first tick of a day.
func (c *Clock) StartOf(day int) model.Tick {
	return model.Tick(day) * c.ticksPerDay
}

// Advance moves the clock forward by n ticks and wakes every waiter.
func (c *Clock) Advance(n int) model.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		return c.now
	}
	c.now += model.Tick(n)
	close(c.changed)
	c.changed = make(chan struct{})
	return c.now
}

// Changed returns a channel closed on the next advance.
func (c *Clock) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// WaitUntil blocks until the clock reaches t or ctx is done.
func (c *Clock) WaitUntil(ctx context.Context, t model.Tick) error {
	for {
		c.mu.Lock()
		if c.now >= t {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sleep blocks for n ticks. A non-positive n returns immediately.
func (c *Clock) Sleep(ctx context.Context, n int) error {
	if n <= 0 {
		return ctx.Err()
	}
	return c.WaitUntil(ctx, c.Now()+model.Tick(n))
}

// Run advances the clock by one tick every interval until ctx is done.
func (c *Clock) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Advance(1)
		}
	}
}
