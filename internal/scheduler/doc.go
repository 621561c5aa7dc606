// Package scheduler re-invokes a run function on a fixed period.
//
// Ticks never overlap: a tick that arrives while the previous invocation is
// still outstanding is logged and counted as a skipped iteration and is not
// executed.
package scheduler
