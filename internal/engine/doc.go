// Package engine runs a recursive fan-out/fan-in computation over a tree that
// is discovered while it is being executed.
//
// The Orchestrator asks a workexec.Executor for the root's metric and child
// identifiers, expands every child concurrently (one goroutine per node), and
// folds the metrics back into a single aggregate. Executor calls are bounded
// by a run-wide quota.Gate and metered by a workexec.Budget. Each set of
// siblings is owned by a coordinator.Batch, which fails fast on Fatal errors
// and, under coordinator.PolicyPropagate, on Transient ones.
//
// A Fatal error anywhere aborts the whole run. Transient errors under
// coordinator.PolicySkip produce a partial aggregate together with the list of
// failure records.
package engine
