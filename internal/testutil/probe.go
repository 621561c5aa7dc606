package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/fanoutgo/internal/workexec"
)

// Probe wraps an executor and records how it is called.
type Probe struct {
	inner workexec.Executor

	inFlight atomic.Int64
	peak     atomic.Int64

	mu    sync.Mutex
	calls []string
}

// NewProbe wraps inner.
func NewProbe(inner workexec.Executor) *Probe {
	return &Probe{inner: inner}
}

// Fetch implements workexec.Executor.
func (p *Probe) Fetch(ctx context.Context, id string) (workexec.Item, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, id)
	p.mu.Unlock()

	return p.inner.Fetch(ctx, id)
}

// Peak returns the highest number of concurrent calls observed.
func (p *Probe) Peak() int {
	return int(p.peak.Load())
}

// Calls returns the identifiers fetched, in call order.
func (p *Probe) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Called reports whether id was fetched at least once.
func (p *Probe) Called(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == id {
			return true
		}
	}
	return false
}
