package workexec

import (
	"context"
	"errors"
	"time"

	"github.com/vk/fanoutgo/internal/metrics"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// Guarded wraps an Executor with the run's Budget, an optional per-call
// timeout and latency recording. Every error it returns is a *taskerr.Error.
type Guarded struct {
	inner   Executor
	budget  *Budget
	timeout time.Duration
	latency *metrics.Latency
}

// NewGuarded creates a Guarded executor. A zero timeout disables the per-call
// deadline; a nil latency recorder disables recording.
func NewGuarded(inner Executor, budget *Budget, timeout time.Duration, latency *metrics.Latency) *Guarded {
	if budget == nil {
		budget = NewBudget(0)
	}
	return &Guarded{inner: inner, budget: budget, timeout: timeout, latency: latency}
}

// Fetch implements Executor.
func (g *Guarded) Fetch(ctx context.Context, id string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, taskerr.NewCancelled(id, err)
	}
	if err := g.budget.Take(id); err != nil {
		return Item{}, err
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	item, err := g.inner.Fetch(callCtx, id)
	if g.latency != nil {
		g.latency.Record(time.Since(start))
	}
	if err == nil {
		return item, nil
	}

	rec := taskerr.Classify(id, err)
	if rec.Kind == taskerr.Fatal {
		return Item{}, rec
	}
	// Cancellation by the caller wins over whatever else the executor reported.
	if ctx.Err() != nil {
		return Item{}, taskerr.NewCancelled(id, ctx.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Item{}, taskerr.NewTransient(id, "call timed out after "+g.timeout.String(), err)
	}
	return Item{}, rec
}

// Budget returns the budget this executor draws from.
func (g *Guarded) Budget() *Budget {
	return g.budget
}
