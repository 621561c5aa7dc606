package engine

import (
	"time"

	"github.com/vk/fanoutgo/internal/coordinator"
	"github.com/vk/fanoutgo/internal/metrics"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// Params are the per-invocation knobs of a run.
type Params struct {
	// MaxConcurrency bounds the number of executor calls in flight. Values
	// below 1 are treated as 1.
	MaxConcurrency int
	// MaxCalls is the call budget of the run; 0 or less means unlimited.
	MaxCalls int64
	Policy   coordinator.Policy
}

// Stats describe the resources a run consumed.
type Stats struct {
	Calls   int64           `json:"calls"`
	Nodes   int             `json:"nodes"`
	Failed  int64           `json:"failed"`
	Peak    int             `json:"peakConcurrency"`
	Elapsed time.Duration   `json:"elapsed"`
	Latency metrics.Summary `json:"latency"`
}

// Result is the outcome of one run.
type Result struct {
	RunID  string `json:"runId"`
	RootID string `json:"rootId"`
	// Aggregate is only usable when Err is nil.
	Aggregate int64 `json:"aggregate"`
	Partial   bool  `json:"partial"`
	// Err is the failure that prevented an aggregate, nil on success.
	Err *taskerr.Error `json:"error,omitempty"`
	// Errors lists every failure record collected during the run. Cancelled
	// records are never included.
	Errors []*taskerr.Error `json:"errors,omitempty"`
	// Children holds the aggregate of every child of the root that finished.
	Children map[string]int64 `json:"children,omitempty"`
	Stats    Stats            `json:"stats"`
}

// Value returns the aggregate and whether it is usable.
func (r Result) Value() (int64, bool) {
	if r.Err != nil {
		return 0, false
	}
	return r.Aggregate, true
}

// Failed reports the number of nodes that ended Failed or Cancelled.
func (r Result) Failed() int64 {
	return r.Stats.Failed
}
