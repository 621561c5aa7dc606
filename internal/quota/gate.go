// Package quota provides the bounded counting semaphore that limits how many
// Work Executor calls may be outstanding at once across an entire run.
package quota

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate limits concurrently outstanding work to a fixed number of slots.
//
// A Gate is shared by every node of a run; the limit is global to the tree,
// not per node.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
	peak     atomic.Int64
}

// New creates a Gate with n slots. Values below 1 are normalised to 1.
func New(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(n)),
		capacity: int64(n),
	}
}

// Acquire blocks until a slot is free. It only fails when ctx is done, which
// callers treat as cancellation rather than a quota error.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	cur := g.inUse.Add(1)
	for {
		p := g.peak.Load()
		if cur <= p || g.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	return nil
}

// Release frees a slot. It must be called exactly once per successful Acquire.
func (g *Gate) Release() {
	g.inUse.Add(-1)
	g.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released on every exit path,
// including panics inside fn.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Capacity returns the number of slots.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InUse returns the number of slots currently held.
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// Peak returns the highest number of slots held at the same time.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
