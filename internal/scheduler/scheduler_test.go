package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodic_RunsUntilMaxIterations(t *testing.T) {
	var calls atomic.Int64
	p := NewPeriodic(5*time.Millisecond, func(ctx context.Context, it int64) error {
		calls.Add(1)
		return nil
	}, WithMaxIterations(3))

	err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(3), p.Stats().Iterations)
}

func TestPeriodic_SkipsOverlappingTicks(t *testing.T) {
	var running, overlaps atomic.Int32
	p := NewPeriodic(5*time.Millisecond, func(ctx context.Context, it int64) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer running.Add(-1)
		time.Sleep(40 * time.Millisecond)
		return nil
	}, WithMaxIterations(2))

	err := p.Run(context.Background())
	require.NoError(t, err)

	st := p.Stats()
	assert.Zero(t, overlaps.Load())
	assert.Equal(t, int64(2), st.Iterations)
	assert.Positive(t, st.Skipped)
}

func TestPeriodic_CountsFailures(t *testing.T) {
	p := NewPeriodic(time.Millisecond, func(ctx context.Context, it int64) error {
		if it%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}, WithMaxIterations(4))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, int64(2), p.Stats().Failures)
}

func TestPeriodic_StopsOnCancelAndWaitsForIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool
	p := NewPeriodic(time.Hour, func(ctx context.Context, it int64) error {
		cancel()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, finished.Load(), "Run must wait for the outstanding iteration")
}

func TestPeriodic_InvalidPeriod(t *testing.T) {
	p := NewPeriodic(0, func(context.Context, int64) error { return nil })
	assert.Error(t, p.Run(context.Background()))
}
