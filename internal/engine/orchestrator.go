package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/inmemorystore"
	"github.com/vk/fanoutgo/internal/metrics"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/nodeid"
	"github.com/vk/fanoutgo/internal/quota"
	"github.com/vk/fanoutgo/internal/runguard"
	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/workexec"
)

// Orchestrator runs trees against one executor. It is safe for concurrent
// use; concurrent runs for the same root are rejected by its guard.
type Orchestrator struct {
	exec        workexec.Executor
	guard       runguard.Guard
	grace       time.Duration
	callTimeout time.Duration
	obs         node.Observer
	logger      *slog.Logger

	draining sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGrace sets how long a fast-failing batch waits for its cancelled
// siblings.
func WithGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.grace = d }
}

// WithCallTimeout bounds every executor call. Timeouts are Transient.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.callTimeout = d }
}

// WithObserver registers an observer for node transitions.
func WithObserver(obs node.Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

// WithGuard replaces the default in-process run guard.
func WithGuard(g runguard.Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithLogger sets the logger used when the run context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator for exec.
func New(exec workexec.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{exec: exec}
	for _, opt := range opts {
		opt(o)
	}
	if o.guard == nil {
		o.guard = runguard.NewLocal()
	}
	return o
}

// Run executes the tree rooted at rootID.
//
// The returned error is reserved for usage and contract problems: a concurrent
// run for the same root (taskerr.ErrRunInProgress), or an identifier graph that
// contains a cycle (taskerr.ErrCycle) or reaches an identifier twice
// (taskerr.ErrDuplicate). Failures of the work itself are reported in
// Result.Err and Result.Errors.
func (o *Orchestrator) Run(ctx context.Context, rootID string, p Params) (Result, error) {
	if rootID == "" {
		return Result{}, errors.New("root identifier must not be empty")
	}
	if _, ok := ctxlog.Lookup(ctx); !ok && o.logger != nil {
		ctx = ctxlog.WithLogger(ctx, o.logger)
	}

	release, err := o.guard.Acquire(ctx, rootID)
	if err != nil {
		return Result{}, fmt.Errorf("run %q: %w", rootID, err)
	}

	runID := uuid.NewString()
	ctx = ctxlog.With(ctx, "runID", runID, "root", rootID)
	logger := ctxlog.FromContext(ctx)

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	budget := workexec.NewBudget(p.MaxCalls)
	latency := metrics.NewLatency()
	r := &run{
		id:     runID,
		exec:   workexec.NewGuarded(o.exec, budget, o.callTimeout, latency),
		gate:   quota.New(p.MaxConcurrency),
		claims: inmemorystore.New(),
		policy: p.Policy,
		grace:  o.grace,
		obs:    o.obs,
		logger: logger,
		abort:  abort,
	}
	defer o.settle(r, release)

	logger.Info("Run started.",
		"maxConcurrency", r.gate.Capacity(), "maxCalls", p.MaxCalls, "policy", p.Policy)
	start := time.Now()

	rootLineage := nodeid.Root(rootID)
	r.claims.Seed(rootLineage)
	root := node.New(rootLineage, "", runID, r)
	root.Bind(abort)
	out, sum := r.visit(runCtx, root)

	res := Result{
		RunID:  runID,
		RootID: rootID,
		Errors: out.Records,
		Stats: Stats{
			Calls:   budget.Calls(),
			Nodes:   r.claims.Len(),
			Failed:  r.failed.Load(),
			Peak:    r.gate.Peak(),
			Elapsed: time.Since(start),
			Latency: latency.Summary(),
		},
	}
	if sum != nil {
		res.Children = sum.Aggregates
	}

	switch fatal := r.fatal.Load(); {
	case fatal != nil:
		res.Err = fatal
	case out.State == node.Done:
		res.Aggregate = out.Aggregate
		res.Partial = out.Partial
	case out.State == node.Failed:
		res.Err = out.Cause
	case sum != nil && sum.Failure != nil && ctx.Err() == nil:
		res.Err = sum.Failure
	default:
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		res.Err = taskerr.NewCancelled(rootID, cause)
	}

	if v := r.violation.Load(); v != nil {
		logger.Error("Run aborted by contract violation.", "error", v.err)
		return res, v.err
	}

	if res.Err != nil {
		logger.Error("Run failed.", "error", res.Err, "calls", res.Stats.Calls, "took", res.Stats.Elapsed)
	} else {
		logger.Info("Run finished.",
			"aggregate", res.Aggregate, "partial", res.Partial, "errors", len(res.Errors),
			"calls", res.Stats.Calls, "took", res.Stats.Elapsed)
	}
	return res, nil
}

// settle releases the root's guard once every node goroutine of r has
// returned. A node still inside the executor after its batch's grace period
// keeps the root busy, so no new run for it can start until the call ends.
func (o *Orchestrator) settle(r *run, release func()) {
	if r.live.Load() == 0 {
		release()
		return
	}
	r.logger.Warn("Run returned with nodes still in flight, holding root until they finish.",
		"inFlight", r.live.Load())
	o.draining.Add(1)
	go func() {
		defer o.draining.Done()
		r.inflight.Wait()
		r.logger.Debug("In-flight nodes finished, root released.")
		release()
	}()
}

// Wait blocks until the nodes left in flight by finished runs have returned
// and their roots are released. It must not be called concurrently with Run.
func (o *Orchestrator) Wait() {
	o.draining.Wait()
}
