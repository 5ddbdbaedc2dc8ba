package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayNextStaysInBounds(t *testing.T) {
	d := NewDelay(10*time.Second, 3*time.Second)
	for i := 0; i < 200; i++ {
		next := d.Next()
		assert.GreaterOrEqual(t, next, 7*time.Second)
		assert.LessOrEqual(t, next, 13*time.Second)
	}
}

func TestDelayNextNeverNegative(t *testing.T) {
	d := NewDelay(time.Second, 5*time.Second)
	d.jitter = func(int64) int64 { return 0 }
	assert.Zero(t, d.Next())
}

func TestDelayNegativeOffsetIsAbsolute(t *testing.T) {
	d := NewDelay(10*time.Second, -2*time.Second)
	d.jitter = func(n int64) int64 { return n - 1 }
	assert.Equal(t, 12*time.Second, d.Next())
}

func TestDelaySkipEndsWaitInProgress(t *testing.T) {
	d := NewDelay(time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				d.Skip()
			}
		}
	}()

	wait, skipped, err := d.Wait(ctx)
	close(done)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Equal(t, time.Hour, wait)
}

func TestDelaySkipWithoutWaitIsDiscarded(t *testing.T) {
	d := NewDelay(20*time.Millisecond, 0)
	d.Skip()

	wait, skipped, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 20*time.Millisecond, wait)
}

func TestDelayWaitHonoursContext(t *testing.T) {
	d := NewDelay(time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, skipped, err := d.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, skipped)
}

func TestDelayZeroReturnsImmediately(t *testing.T) {
	wait, skipped, err := NewDelay(0, 0).Wait(context.Background())
	require.NoError(t, err)
	assert.Zero(t, wait)
	assert.False(t, skipped)
}
