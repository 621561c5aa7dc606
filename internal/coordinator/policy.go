package coordinator

import (
	"fmt"
	"strings"
)

// Policy decides how Transient sibling failures affect a batch.
type Policy int

const (
	// PolicySkip records Transient failures and lets the batch finish with a
	// partial result.
	PolicySkip Policy = iota
	// PolicyPropagate treats a Transient failure like a Fatal one for the
	// batch it occurred in.
	PolicyPropagate
)

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyPropagate:
		return "propagate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration string into a Policy. The empty string
// selects PolicySkip.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return PolicySkip, nil
	case "propagate":
		return PolicyPropagate, nil
	default:
		return PolicySkip, fmt.Errorf("invalid transient policy %q: must be one of skip, propagate", s)
	}
}
