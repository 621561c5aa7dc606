package scheduler

import "context"

// RunFunc performs one iteration. iteration starts at 1.
type RunFunc func(ctx context.Context, iteration int64) error

// Stats counts what a scheduler did so far.
type Stats struct {
	Iterations int64 `json:"iterations"`
	Skipped    int64 `json:"skipped"`
	Failures   int64 `json:"failures"`
}

// Scheduler drives a RunFunc until its context is cancelled or it has nothing
// left to do.
type Scheduler interface {
	// Run blocks until the scheduler stops. It waits for the outstanding
	// iteration before returning.
	Run(ctx context.Context) error
	Stats() Stats
}
