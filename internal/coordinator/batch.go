package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// DefaultGrace bounds the wait for cancelled siblings when no grace period is
// configured.
const DefaultGrace = 2 * time.Second

// State is the lifecycle state of a Batch.
type State int32

const (
	Collecting State = iota
	AllDone
	FastFailing
	Closed
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case AllDone:
		return "all_done"
	case FastFailing:
		return "fast_failing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("batch_state(%d)", int32(s))
	}
}

// Outcome is what a sibling reports when it terminates.
type Outcome struct {
	ID    string
	State node.State
	// Aggregate is only meaningful when State is node.Done.
	Aggregate int64
	Partial   bool
	// Records are the failure records gathered in the sibling's subtree.
	Records []*taskerr.Error
	// Cause is the failure the sibling propagates to its batch, if any.
	Cause *taskerr.Error
}

// Summary is the result of closing a Batch.
type Summary struct {
	// Aggregates holds the aggregate of every sibling that finished Done.
	Aggregates map[string]int64
	Records    []*taskerr.Error
	Partial    bool
	// Failure is the first qualifying failure, nil when the batch completed
	// or was stopped by its parent context.
	Failure *taskerr.Error
	// State is AllDone or FastFailing.
	State State
	// Forced counts siblings forced to Cancelled after the grace period.
	Forced int
}

// Sum returns the total of all successful sibling aggregates.
func (s Summary) Sum() int64 {
	var total int64
	for _, v := range s.Aggregates {
		total += v
	}
	return total
}

type report struct {
	idx int
	out Outcome
}

// Option configures a Batch.
type Option func(*Batch)

// WithPolicy sets the transient policy.
func WithPolicy(p Policy) Option {
	return func(b *Batch) { b.policy = p }
}

// WithGrace sets the grace period of the FastFailing barrier.
func WithGrace(d time.Duration) Option {
	return func(b *Batch) {
		if d > 0 {
			b.grace = d
		}
	}
}

// Batch coordinates one batch of siblings.
type Batch struct {
	ctx    context.Context
	owner  string
	policy Policy
	grace  time.Duration

	state    atomic.Int32
	group    errgroup.Group
	handles  []*node.Handle
	outcomes chan report
}

// New creates a batch owned by owner for up to size siblings. ctx is the
// parent's context; every sibling runs under a context derived from it.
func New(ctx context.Context, owner string, size int, opts ...Option) *Batch {
	b := &Batch{
		ctx:      ctx,
		owner:    owner,
		grace:    DefaultGrace,
		handles:  make([]*node.Handle, 0, size),
		outcomes: make(chan report, size),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Owner returns the identifier of the parent that owns the batch.
func (b *Batch) Owner() string {
	return b.owner
}

// State returns the current lifecycle state.
func (b *Batch) State() State {
	return State(b.state.Load())
}

// Len returns the number of spawned siblings.
func (b *Batch) Len() int {
	return len(b.handles)
}

// Spawn registers h and runs fn in a goroutine tracked by the batch. fn
// receives a context that is cancelled when h is cancelled. Spawn must not be
// called concurrently, more than size times, or after Wait.
func (b *Batch) Spawn(h *node.Handle, fn func(ctx context.Context) Outcome) {
	if len(b.handles) == cap(b.outcomes) {
		panic(fmt.Sprintf("coordinator: batch %q spawned more than %d siblings", b.owner, cap(b.outcomes)))
	}
	idx := len(b.handles)
	b.handles = append(b.handles, h)

	cctx, cancel := context.WithCancel(b.ctx)
	h.Bind(cancel)
	b.group.Go(func() error {
		defer cancel()
		out := fn(cctx)
		out.ID = h.ID()
		b.outcomes <- report{idx: idx, out: out}
		return nil
	})
}

// Wait blocks until every sibling has reported, or until the grace period of
// the FastFailing barrier has elapsed, and closes the batch.
func (b *Batch) Wait() Summary {
	logger := ctxlog.FromContext(b.ctx)
	sum := Summary{Aggregates: make(map[string]int64, len(b.handles))}
	acked := make([]bool, len(b.handles))
	received := 0

	var graceC <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	parentDone := b.ctx.Done()

	failFast := func(cause *taskerr.Error) {
		if !b.state.CompareAndSwap(int32(Collecting), int32(FastFailing)) {
			return
		}
		logger.Debug("Batch fast-failing, cancelling pending siblings.",
			"owner", b.owner, "cause", cause, "pending", len(b.handles)-received)
		for i, h := range b.handles {
			if !acked[i] {
				h.Cancel()
			}
		}
		timer = time.NewTimer(b.grace)
		graceC = timer.C
	}

loop:
	for received < len(b.handles) {
		select {
		case r := <-b.outcomes:
			received++
			acked[r.idx] = true
			b.record(&sum, r.out)
			if b.qualifies(r.out.Cause) {
				if sum.Failure == nil {
					sum.Failure = r.out.Cause
				}
				failFast(r.out.Cause)
			}
		case <-parentDone:
			parentDone = nil
			failFast(nil)
		case <-graceC:
			for i, h := range b.handles {
				if acked[i] {
					continue
				}
				if h.Finish(node.Cancelled) {
					sum.Forced++
				}
				sum.Partial = true
			}
			logger.Warn("Grace period elapsed before all siblings acknowledged cancellation.",
				"owner", b.owner, "grace", b.grace, "forced", sum.Forced)
			break loop
		}
	}

	if received == len(b.handles) {
		_ = b.group.Wait()
	}

	b.state.CompareAndSwap(int32(Collecting), int32(AllDone))
	sum.State = b.State()
	b.state.Store(int32(Closed))
	return sum
}

func (b *Batch) qualifies(cause *taskerr.Error) bool {
	if cause == nil {
		return false
	}
	switch cause.Kind {
	case taskerr.Fatal:
		return true
	case taskerr.Transient:
		return b.policy == PolicyPropagate
	default:
		return false
	}
}

func (b *Batch) record(sum *Summary, out Outcome) {
	sum.Records = append(sum.Records, out.Records...)
	if out.State == node.Done {
		sum.Aggregates[out.ID] = out.Aggregate
		if out.Partial {
			sum.Partial = true
		}
		return
	}
	sum.Partial = true
}
