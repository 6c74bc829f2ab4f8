package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock maps simulation time, measured in simulated minutes since run start,
// onto execution time. FastClock runs as fast as the loop can drain the
// queue; RealtimeClock paces the loop against the wall clock.
type Clock interface {
	// Now returns the current simulation time in minutes.
	Now() float64
	// SleepUntil blocks until simulation time t is reached or ctx is done.
	SleepUntil(ctx context.Context, t float64) error
}

// FastClock advances instantly to whatever time the caller sleeps to.
type FastClock struct {
	mu  sync.Mutex
	now float64
}

// NewFastClock returns a fast clock positioned at sim time zero.
func NewFastClock() *FastClock {
	return &FastClock{}
}

func (c *FastClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil jumps the clock forward to t without blocking. The clock never
// moves backwards.
func (c *FastClock) SleepUntil(ctx context.Context, t float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
	return nil
}

// RealtimeClock maps simulation minutes to wall seconds through a speed
// factor: at speed 60 one simulated hour passes per wall minute.
type RealtimeClock struct {
	speed   float64
	started time.Time

	mu   sync.Mutex
	last float64
}

// NewRealtimeClock returns a realtime clock anchored at the current wall
// time. Speed must be in [1, 1000].
func NewRealtimeClock(speed float64) (*RealtimeClock, error) {
	if speed < 1 || speed > 1000 {
		return nil, fmt.Errorf("speed factor %.2f out of range [1, 1000]", speed)
	}
	return &RealtimeClock{speed: speed, started: time.Now()}, nil
}

// Now converts elapsed wall time to simulation minutes. Reads are clamped so
// the reported time never decreases even if the wall clock is adjusted.
func (c *RealtimeClock) Now() float64 {
	elapsed := time.Since(c.started).Seconds()
	now := elapsed * c.speed / 60.0

	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// SleepUntil blocks until sim time t or context cancellation, whichever is
// first. Returns immediately when t is already in the past.
func (c *RealtimeClock) SleepUntil(ctx context.Context, t float64) error {
	now := c.Now()
	if t <= now {
		return ctx.Err()
	}
	delay := time.Duration((t - now) * 60.0 / c.speed * float64(time.Second))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
