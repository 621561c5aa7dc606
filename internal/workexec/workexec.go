// Package workexec defines the Work Executor contract consumed by the tree
// engine, the per-run call Budget, and the Guarded decorator that enforces
// both the budget and per-call timeouts.
package workexec

import "context"

// Item is what a single fetch returns for an identifier: the node's local
// metric and the identifiers of its children, in order.
type Item struct {
	Metric   int64    `json:"metric" yaml:"metric"`
	Children []string `json:"children,omitempty" yaml:"children,omitempty"`
}

// Executor performs one unit of work for an identifier.
//
// Implementations report failures as *taskerr.Error records where they can;
// any other error is classified by Guarded.
type Executor interface {
	Fetch(ctx context.Context, id string) (Item, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, id string) (Item, error)

// Fetch calls f.
func (f ExecutorFunc) Fetch(ctx context.Context, id string) (Item, error) {
	return f(ctx, id)
}
