// Package coordinator implements the fail-fast coordinator that owns one batch
// of sibling nodes.
//
// A Batch collects the outcome of every sibling spawned by a single parent.
// Its lifecycle is
//
//	Collecting -> AllDone -> Closed
//	Collecting -> FastFailing -> Closed
//
// FastFailing is entered at most once, either by the first qualifying failure
// (Fatal always, Transient only under PolicyPropagate) or by cancellation of
// the parent context. On entry every sibling that has not reported yet is sent
// its cancellation signal and the batch waits up to the grace period for the
// rest of the outcomes. Siblings still silent when the grace period elapses are
// forced to Cancelled.
package coordinator
