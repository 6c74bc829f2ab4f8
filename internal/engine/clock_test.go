package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastClockJumpsForwardOnly(t *testing.T) {
	c := NewFastClock()
	ctx := context.Background()

	assert.Equal(t, 0.0, c.Now())
	require.NoError(t, c.SleepUntil(ctx, 720))
	assert.Equal(t, 720.0, c.Now())

	// Sleeping to the past leaves the clock untouched.
	require.NoError(t, c.SleepUntil(ctx, 100))
	assert.Equal(t, 720.0, c.Now())
}

func TestFastClockRespectsCancellation(t *testing.T) {
	c := NewFastClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.SleepUntil(ctx, 10))
}

func TestRealtimeClockSpeedValidation(t *testing.T) {
	_, err := NewRealtimeClock(0.5)
	assert.Error(t, err)
	_, err = NewRealtimeClock(1001)
	assert.Error(t, err)
	_, err = NewRealtimeClock(60)
	assert.NoError(t, err)
}

func TestRealtimeClockPacing(t *testing.T) {
	// 600x speed: one sim-minute per 100 ms of wall time.
	c, err := NewRealtimeClock(600)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, c.SleepUntil(context.Background(), 2))
	elapsed := time.Since(start)

	assert.Greater(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.GreaterOrEqual(t, c.Now(), 2.0)
}

func TestRealtimeClockMonotoneReads(t *testing.T) {
	c, err := NewRealtimeClock(1000)
	require.NoError(t, err)

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestRealtimeClockSleepCancellation(t *testing.T) {
	c, err := NewRealtimeClock(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.SleepUntil(ctx, 120) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not return after cancellation")
	}
}

func TestRealtimeClockPastTimestampReturnsImmediately(t *testing.T) {
	c, err := NewRealtimeClock(1000)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	require.NoError(t, c.SleepUntil(context.Background(), 0.01))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
