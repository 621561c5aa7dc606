package engine

import (
	"context"

	"github.com/vk/fanoutgo/internal/coordinator"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/nodeid"
	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/workexec"
)

// visit executes the node behind h and, recursively, its subtree. The returned
// summary describes the node's child batch and is nil when no batch ran.
func (r *run) visit(ctx context.Context, h *node.Handle) (coordinator.Outcome, *coordinator.Summary) {
	if !h.Start() {
		return coordinator.Outcome{State: node.Cancelled}, nil
	}

	item, rec := r.fetch(ctx, h.ID())
	if rec != nil {
		return r.fail(h, rec), nil
	}
	if len(item.Children) == 0 {
		return r.finish(h, coordinator.Outcome{State: node.Done, Aggregate: item.Metric}), nil
	}

	lineages := make([]*nodeid.Lineage, 0, len(item.Children))
	for _, cid := range item.Children {
		l := h.Lineage().Child(cid)
		if err := r.claims.Claim(l); err != nil {
			r.violation.CompareAndSwap(nil, &contractError{err: err})
			return r.fail(h, taskerr.NewFatal(cid, err.Error(), err)), nil
		}
		lineages = append(lineages, l)
	}

	batch := coordinator.New(ctx, h.ID(), len(lineages),
		coordinator.WithPolicy(r.policy),
		coordinator.WithGrace(r.grace),
	)
	for _, l := range lineages {
		child := node.New(l, h.ID(), r.id, r)
		done := r.track()
		batch.Spawn(child, func(cctx context.Context) coordinator.Outcome {
			defer done()
			out, _ := r.visit(cctx, child)
			return out
		})
	}
	sum := batch.Wait()

	switch {
	case sum.Failure != nil && sum.Failure.Kind == taskerr.Fatal:
		return r.finish(h, coordinator.Outcome{State: node.Cancelled, Records: sum.Records, Cause: sum.Failure}), &sum
	case sum.State == coordinator.FastFailing || ctx.Err() != nil:
		return r.finish(h, coordinator.Outcome{State: node.Cancelled, Records: sum.Records}), &sum
	}
	return r.finish(h, coordinator.Outcome{
		State:     node.Done,
		Aggregate: item.Metric + sum.Sum(),
		Partial:   sum.Partial,
		Records:   sum.Records,
	}), &sum
}

// fetch calls the executor while holding a gate slot. Cancellation is checked
// again once the slot is held so a node cancelled while queued never calls
// the executor.
func (r *run) fetch(ctx context.Context, id string) (workexec.Item, *taskerr.Error) {
	var item workexec.Item
	var rec *taskerr.Error
	err := r.gate.Do(ctx, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		item, err = r.exec.Fetch(ctx, id)
		if err != nil {
			rec = taskerr.Classify(id, err)
			if rec.Kind == taskerr.Fatal {
				// The run must be aborted before the slot is handed to a queued node.
				r.abortRun(rec)
			}
		}
		return err
	})
	if err == nil {
		return item, nil
	}
	if rec == nil {
		rec = taskerr.Classify(id, err)
	}
	return workexec.Item{}, rec
}

// fail terminates h after its own work failed.
func (r *run) fail(h *node.Handle, rec *taskerr.Error) coordinator.Outcome {
	switch rec.Kind {
	case taskerr.Cancelled:
		return r.finish(h, coordinator.Outcome{State: node.Cancelled})
	case taskerr.Fatal:
		r.abortRun(rec)
	default:
		r.logger.Warn("Node failed.", "nodeID", h.ID(), "error", rec)
	}
	return r.finish(h, coordinator.Outcome{
		State:   node.Failed,
		Records: []*taskerr.Error{rec},
		Cause:   rec,
	})
}

// finish applies the terminal transition of out. If the node was already
// forced into a terminal state the outcome is downgraded to Cancelled.
func (r *run) finish(h *node.Handle, out coordinator.Outcome) coordinator.Outcome {
	if h.Finish(out.State) {
		return out
	}
	return coordinator.Outcome{State: h.State(), Records: out.Records, Cause: out.Cause}
}
