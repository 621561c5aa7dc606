package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/fanoutgo/internal/coordinator"
	"github.com/vk/fanoutgo/internal/inmemorystore"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/quota"
	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/workexec"
)

// run is the state shared by every node of one invocation. It is created by
// Orchestrator.Run and threaded explicitly through the recursion.
type run struct {
	id     string
	exec   workexec.Executor
	gate   *quota.Gate
	claims *inmemorystore.Store
	policy coordinator.Policy
	grace  time.Duration
	obs    node.Observer
	logger *slog.Logger

	abort     context.CancelFunc
	abortOnce sync.Once
	fatal     atomic.Pointer[taskerr.Error]
	violation atomic.Pointer[contractError]
	failed    atomic.Int64

	// live counts node goroutines that have not returned yet; inflight lets
	// the orchestrator wait for them.
	live     atomic.Int64
	inflight sync.WaitGroup
}

type contractError struct{ err error }

// abortRun records the first Fatal failure and cancels the run-wide context.
func (r *run) abortRun(rec *taskerr.Error) {
	r.fatal.CompareAndSwap(nil, rec)
	r.abortOnce.Do(func() {
		r.logger.Error("Fatal error, aborting run.", "nodeID", rec.ID, "error", rec)
		r.abort()
	})
}

// track registers a node goroutine about to be spawned. The returned func
// must be called when it returns.
func (r *run) track() func() {
	r.live.Add(1)
	r.inflight.Add(1)
	return func() {
		r.live.Add(-1)
		r.inflight.Done()
	}
}

// HandleTransition counts failed nodes and forwards the event.
func (r *run) HandleTransition(e node.Event) {
	if e.To == node.Failed || e.To == node.Cancelled {
		r.failed.Add(1)
	}
	if r.obs != nil {
		r.obs.HandleTransition(e)
	}
}
