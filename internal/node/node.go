// Package node defines the task handle of a single node in the execution tree:
// its identity, its place in the tree, its monotonic state machine and its
// idempotent cancellation signal.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/fanoutgo/internal/nodeid"
)

// State represents the execution state of a node.
type State int32

const (
	// Pending indicates the node has been spawned but has not started.
	Pending State = iota
	// Running indicates the node is executing or waiting on its children.
	Running
	// Done indicates the node and all of its children finished.
	Done
	// Cancelled indicates the node was stopped before it could finish.
	Cancelled
	// Failed indicates the node's own work failed.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled || s == Failed
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Pending:
		return to == Running || to == Cancelled
	case Running:
		return to == Done || to == Failed || to == Cancelled
	default:
		return false
	}
}

// Event describes one state transition of one node.
type Event struct {
	RunID  string    `json:"runId"`
	NodeID string    `json:"nodeId"`
	Path   string    `json:"path"`
	From   State     `json:"fromState"`
	To     State     `json:"toState"`
	Time   time.Time `json:"timestamp"`
}

// Observer receives transition events. Implementations must be safe for
// concurrent use; events are delivered synchronously from the transitioning
// goroutine.
type Observer interface {
	HandleTransition(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// HandleTransition calls f.
func (f ObserverFunc) HandleTransition(e Event) { f(e) }

// Handle is the task handle of one node.
type Handle struct {
	lineage *nodeid.Lineage
	owner   string
	runID   string
	obs     Observer

	// state is the node's current execution state, managed atomically.
	state atomic.Int32

	mu         sync.Mutex
	cancel     context.CancelFunc
	requested  bool
	cancelOnce sync.Once
}

// New creates a Pending handle. owner names the coordinator that spawned it;
// obs may be nil.
func New(lineage *nodeid.Lineage, owner, runID string, obs Observer) *Handle {
	return &Handle{lineage: lineage, owner: owner, runID: runID, obs: obs}
}

// ID returns the node's identifier.
func (h *Handle) ID() string {
	return h.lineage.ID()
}

// Lineage returns the node's chain of ancestors.
func (h *Handle) Lineage() *nodeid.Lineage {
	return h.lineage
}

// Owner returns the identifier of the coordinator that spawned the node.
func (h *Handle) Owner() string {
	return h.owner
}

// State atomically retrieves the node's execution state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Start moves the node from Pending to Running.
func (h *Handle) Start() bool {
	return h.transition(Pending, Running)
}

// Finish moves the node to the terminal state to. It returns false if the
// node already reached a terminal state or the transition is not allowed, so
// concurrent finishers produce exactly one transition.
func (h *Handle) Finish(to State) bool {
	if !to.Terminal() {
		return false
	}
	for {
		cur := h.State()
		if !isAllowedTransition(cur, to) {
			return false
		}
		if h.transition(cur, to) {
			return true
		}
	}
}

func (h *Handle) transition(from, to State) bool {
	if !h.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if h.obs != nil {
		h.obs.HandleTransition(Event{
			RunID:  h.runID,
			NodeID: h.ID(),
			Path:   h.lineage.String(),
			From:   from,
			To:     to,
			Time:   time.Now(),
		})
	}
	return true
}

// Bind attaches the function that interrupts the node's work. If Cancel was
// already requested, cancel is invoked immediately.
func (h *Handle) Bind(cancel context.CancelFunc) {
	h.mu.Lock()
	h.cancel = cancel
	requested := h.requested
	h.mu.Unlock()
	if requested && cancel != nil {
		cancel()
	}
}

// Cancel sends the cancellation signal. Only the first call has an effect;
// it returns true for that call.
func (h *Handle) Cancel() bool {
	first := false
	h.cancelOnce.Do(func() {
		first = true
		h.mu.Lock()
		h.requested = true
		cancel := h.cancel
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	return first
}

// CancelRequested reports whether Cancel has been called.
func (h *Handle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested
}
