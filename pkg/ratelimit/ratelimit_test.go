package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestPacer_SpacesRequests(t *testing.T) {
	p := New(Config{Interval: 20 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for range 4 {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestPacer_ZeroIntervalIsUnlimited(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, rate.Inf, p.Limit())

	start := time.Now()
	for range 100 {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_WaitCanceled(t *testing.T) {
	p := New(Config{Interval: time.Hour})
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacer_AdaptiveSlowdown(t *testing.T) {
	p := New(Config{Interval: 100 * time.Millisecond, Adaptive: true, MinRate: 2})
	assert.InDelta(t, 10.0, float64(p.Limit()), 0.001)

	p.Observe(http.StatusOK)
	assert.Zero(t, p.Slowdowns())

	p.Observe(http.StatusTooManyRequests)
	assert.InDelta(t, 5.0, float64(p.Limit()), 0.001)

	p.Observe(http.StatusServiceUnavailable)
	p.Observe(http.StatusServiceUnavailable)
	assert.InDelta(t, 2.0, float64(p.Limit()), 0.001, "floored at MinRate")
	assert.Equal(t, 3, p.Slowdowns())
}

func TestPacer_Nil(t *testing.T) {
	var p *Pacer
	assert.NoError(t, p.Wait(context.Background()))
	p.Observe(http.StatusTooManyRequests)
	assert.Equal(t, rate.Inf, p.Limit())
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
