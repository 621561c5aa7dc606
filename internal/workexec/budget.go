package workexec

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/fanoutgo/internal/taskerr"
)

// Budget is the finite external call allowance of a run.
//
// Every call, for any identifier, consumes one unit. Once more than max calls
// have been attempted, every further call fails with a Fatal record.
type Budget struct {
	max   int64
	calls atomic.Int64
}

// NewBudget creates a Budget. max <= 0 means unlimited.
func NewBudget(max int64) *Budget {
	return &Budget{max: max}
}

// Take consumes one call for id.
//
// The counter is incremented first and the decision is made on the value
// returned by that increment, so concurrent callers can never observe a stale
// count that would let them exceed the budget.
func (b *Budget) Take(id string) error {
	n := b.calls.Add(1)
	if b.max > 0 && n > b.max {
		return taskerr.NewFatal(id, fmt.Sprintf("call %d exceeds budget of %d", n, b.max), taskerr.ErrBudgetExhausted)
	}
	return nil
}

// Calls returns the number of calls attempted so far, including rejected ones.
func (b *Budget) Calls() int64 {
	return b.calls.Load()
}

// Max returns the configured limit.
func (b *Budget) Max() int64 {
	return b.max
}
