package engine_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/vk/fanoutgo/internal/engine"
	"github.com/vk/fanoutgo/internal/testutil"
	"github.com/vk/fanoutgo/internal/workexec"
)

// TestAggregateEqualsSumOfMetrics checks that for any tree and any concurrency
// limit the aggregate is the sum of all metrics.
func TestAggregateEqualsSumOfMetrics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 40).Draw(t, "size")
		parents := rapid.SliceOfN(rapid.IntRange(0, 1000), size-1, size-1).Draw(t, "parents")
		metrics := rapid.SliceOfN(rapid.Int64Range(0, 100), size, size).Draw(t, "metrics")
		limit := rapid.IntRange(1, 8).Draw(t, "limit")

		items, total := testutil.RandomTree(parents, metrics)
		res, err := engine.New(workexec.NewStatic(items)).Run(context.Background(), testutil.NodeID(0),
			engine.Params{MaxConcurrency: limit})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		v, ok := res.Value()
		if !ok {
			t.Fatalf("no aggregate: %v", res.Err)
		}
		if v != total {
			t.Fatalf("aggregate %d, want %d", v, total)
		}
		if res.Stats.Calls != int64(size) {
			t.Fatalf("calls %d, want %d", res.Stats.Calls, size)
		}
	})
}

// TestQuotaInvariantProperty checks that observed executor concurrency never
// exceeds the gate for any tree shape.
func TestQuotaInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("peak concurrency never exceeds the gate", prop.ForAll(
		func(parents []int, limit int) bool {
			metrics := make([]int64, len(parents)+1)
			for i := range metrics {
				metrics[i] = 1
			}
			items, total := testutil.RandomTree(parents, metrics)
			probe := testutil.NewProbe(workexec.NewStatic(items))

			res, err := engine.New(probe).Run(context.Background(), testutil.NodeID(0),
				engine.Params{MaxConcurrency: limit})
			if err != nil {
				return false
			}
			v, ok := res.Value()
			return ok && v == total && probe.Peak() <= limit && res.Stats.Peak <= limit
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
