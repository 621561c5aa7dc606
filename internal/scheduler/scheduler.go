package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/fanoutgo/internal/ctxlog"
)

// Option configures a Periodic scheduler.
type Option func(*Periodic)

// WithMaxIterations stops the scheduler after n executed iterations. n <= 0
// means no limit.
func WithMaxIterations(n int64) Option {
	return func(p *Periodic) { p.maxIterations = n }
}

// Periodic invokes a RunFunc immediately and then on every tick of period.
type Periodic struct {
	period        time.Duration
	maxIterations int64
	fn            RunFunc

	busy       atomic.Bool
	iterations atomic.Int64
	skipped    atomic.Int64
	failures   atomic.Int64
	wg         sync.WaitGroup
}

var _ Scheduler = (*Periodic)(nil)

// NewPeriodic creates a Periodic scheduler.
func NewPeriodic(period time.Duration, fn RunFunc, opts ...Option) *Periodic {
	p := &Periodic{period: period, fn: fn}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats implements Scheduler.
func (p *Periodic) Stats() Stats {
	return Stats{
		Iterations: p.iterations.Load(),
		Skipped:    p.skipped.Load(),
		Failures:   p.failures.Load(),
	}
}

// Run implements Scheduler. It returns nil once the iteration limit is
// reached and ctx.Err() when cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	if p.period <= 0 {
		return errors.New("scheduler period must be positive")
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Scheduler started.", "period", p.period, "maxIterations", p.maxIterations)

	finished := make(chan struct{}, 1)
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	p.tick(ctx, finished)
	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-finished:
			break loop
		case <-ticker.C:
			p.tick(ctx, finished)
		}
	}

	p.wg.Wait()
	st := p.Stats()
	logger.Info("Scheduler stopped.", "iterations", st.Iterations, "skipped", st.Skipped, "failures", st.Failures)
	return err
}

func (p *Periodic) tick(ctx context.Context, finished chan<- struct{}) {
	logger := ctxlog.FromContext(ctx)
	if p.maxIterations > 0 && p.iterations.Load() >= p.maxIterations {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		n := p.skipped.Add(1)
		logger.Warn("Previous iteration still running, skipping tick.", "skipped", n)
		return
	}

	it := p.iterations.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)

		start := time.Now()
		if err := p.fn(ctx, it); err != nil {
			p.failures.Add(1)
			logger.Error("Iteration failed.", "iteration", it, "error", err)
		} else {
			logger.Debug("Iteration finished.", "iteration", it, "took", time.Since(start))
		}
		if p.maxIterations > 0 && it >= p.maxIterations {
			finished <- struct{}{}
		}
	}()
}
