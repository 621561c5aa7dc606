package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/fanoutgo/internal/coordinator"
	"github.com/vk/fanoutgo/internal/engine"
	"github.com/vk/fanoutgo/internal/eventsink"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/testutil"
	"github.com/vk/fanoutgo/internal/workexec"
)

func defaultParams() engine.Params {
	return engine.Params{MaxConcurrency: 4, MaxCalls: 1000}
}

func TestRun_SumsWholeTree(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"a", "b"}},
		testutil.N{ID: "a", Metric: 2, Kids: []string{"c"}},
		testutil.N{ID: "b", Metric: 3},
		testutil.N{ID: "c", Metric: 4},
	)

	res, err := engine.New(exec).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(10), v)
	assert.False(t, res.Partial)
	assert.Empty(t, res.Errors)
	assert.Equal(t, map[string]int64{"a": 6, "b": 3}, res.Children)
	assert.Equal(t, int64(4), res.Stats.Calls)
	assert.Equal(t, 4, res.Stats.Nodes)
	assert.Zero(t, res.Failed())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(4), res.Stats.Latency.Count)
}

func TestRun_LeafRoot(t *testing.T) {
	exec := testutil.Static(testutil.N{ID: "solo", Metric: 7})

	res, err := engine.New(exec).Run(context.Background(), "solo", defaultParams())
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Nil(t, res.Children)
}

func TestRun_PartialResultUnderSkip(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"A", "B"}},
		testutil.N{ID: "A", Metric: 3},
	)
	exec.FailWith("B", taskerr.NewTransient("", "upstream returned 503", nil))

	res, err := engine.New(exec).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(4), v)
	assert.True(t, res.Partial)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, taskerr.Transient, res.Errors[0].Kind)
	assert.Equal(t, "B", res.Errors[0].ID)
	assert.Equal(t, int64(1), res.Failed())
}

func TestRun_PartialFlagPropagatesUpward(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"mid"}},
		testutil.N{ID: "mid", Metric: 1, Kids: []string{"ok", "bad"}},
		testutil.N{ID: "ok", Metric: 5},
	)
	exec.FailWith("bad", errors.New("connection reset"))

	res, err := engine.New(exec).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.True(t, res.Partial)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "bad", res.Errors[0].ID)
}

func TestRun_FatalAbortCancelsPendingGrandchildren(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"A", "B"}},
		testutil.N{ID: "A", Metric: 3, Kids: []string{"g1", "g2"}},
		testutil.N{ID: "g1", Metric: 1, Kids: []string{"gg1"}},
		testutil.N{ID: "g2", Metric: 1, Kids: []string{"gg2"}},
		testutil.N{ID: "gg1", Metric: 1},
		testutil.N{ID: "gg2", Metric: 1},
	)
	exec.Delay("g1", time.Minute)
	exec.Delay("g2", time.Minute)
	exec.Delay("B", 20*time.Millisecond)
	exec.FailWith("B", taskerr.NewFatal("", "quota exhausted upstream", nil))
	probe := testutil.NewProbe(exec)
	rec := eventsink.NewRecorder()

	start := time.Now()
	res, err := engine.New(probe, engine.WithObserver(rec)).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Fatal, res.Err.Kind)
	assert.Equal(t, "B", res.Err.ID)
	_, ok := res.Value()
	assert.False(t, ok)
	assert.False(t, res.Partial)

	assert.False(t, probe.Called("gg1"))
	assert.False(t, probe.Called("gg2"))
	for _, id := range []string{"g1", "g2", "A", "root"} {
		final, seen := rec.Final(id)
		require.True(t, seen, id)
		assert.Equal(t, node.Cancelled, final, id)
	}
	final, _ := rec.Final("B")
	assert.Equal(t, node.Failed, final)
}

func TestRun_FailFastContainment(t *testing.T) {
	kids := []string{"fatal"}
	nodes := []testutil.N{{ID: "fatal", Metric: 1}}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		kids = append(kids, id)
		nodes = append(nodes, testutil.N{ID: id, Metric: 1})
	}
	nodes = append(nodes, testutil.N{ID: "root", Metric: 1, Kids: kids})
	exec := testutil.Static(nodes...)
	exec.FailWith("fatal", taskerr.NewFatal("", "boom", nil))
	probe := testutil.NewProbe(exec)

	// With a single slot every sibling that has not been fetched yet is queued
	// on the gate when the cancellation signal goes out.
	res, err := engine.New(probe).Run(context.Background(), "root", engine.Params{MaxConcurrency: 1})
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Fatal, res.Err.Kind)
	calls := probe.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "root", calls[0])
	assert.Equal(t, "fatal", calls[len(calls)-1], "no sibling may be fetched after the fatal failure")
}

func TestRun_BudgetExhaustionIsDeterministic(t *testing.T) {
	exec := workexec.NewStatic(testutil.Chain(10))

	res, err := engine.New(exec).Run(context.Background(), testutil.NodeID(0),
		engine.Params{MaxConcurrency: 3, MaxCalls: 5})
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Fatal, res.Err.Kind)
	assert.ErrorIs(t, res.Err, taskerr.ErrBudgetExhausted)
	assert.Equal(t, testutil.NodeID(5), res.Err.ID)
	assert.False(t, res.Partial)
	assert.Equal(t, int64(6), res.Stats.Calls)
	_, ok := res.Value()
	assert.False(t, ok)
}

func TestRun_ExactBudgetSucceeds(t *testing.T) {
	exec := workexec.NewStatic(testutil.Chain(5))

	res, err := engine.New(exec).Run(context.Background(), testutil.NodeID(0),
		engine.Params{MaxConcurrency: 2, MaxCalls: 5})
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestRun_QuotaBoundsConcurrency(t *testing.T) {
	nodes := []testutil.N{}
	var kids []string
	for i := 1; i <= 30; i++ {
		id := testutil.NodeID(i)
		kids = append(kids, id)
		nodes = append(nodes, testutil.N{ID: id, Metric: 1})
	}
	nodes = append(nodes, testutil.N{ID: "root", Metric: 0, Kids: kids})
	exec := testutil.Static(nodes...)
	for _, id := range kids {
		exec.Delay(id, 2*time.Millisecond)
	}
	probe := testutil.NewProbe(exec)

	res, err := engine.New(probe).Run(context.Background(), "root", engine.Params{MaxConcurrency: 3})
	require.NoError(t, err)

	v, _ := res.Value()
	assert.Equal(t, int64(30), v)
	assert.LessOrEqual(t, probe.Peak(), 3)
	assert.LessOrEqual(t, res.Stats.Peak, 3)
}

func TestRun_CycleIsContractViolation(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "a", Metric: 1, Kids: []string{"b"}},
		testutil.N{ID: "b", Metric: 1, Kids: []string{"a"}},
	)

	res, err := engine.New(exec).Run(context.Background(), "a", defaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, taskerr.ErrCycle)
	_, ok := res.Value()
	assert.False(t, ok)
}

func TestRun_DuplicateIsContractViolation(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"x", "y"}},
		testutil.N{ID: "x", Metric: 1, Kids: []string{"shared"}},
		testutil.N{ID: "y", Metric: 1, Kids: []string{"shared"}},
		testutil.N{ID: "shared", Metric: 1},
	)

	_, err := engine.New(exec).Run(context.Background(), "root", defaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, taskerr.ErrDuplicate)
}

func TestRun_RejectsConcurrentRunForSameRoot(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	exec := workexec.ExecutorFunc(func(ctx context.Context, id string) (workexec.Item, error) {
		if id == "root" {
			once.Do(func() { close(entered) })
			<-release
		}
		return workexec.Item{Metric: 1}, nil
	})
	o := engine.New(exec)

	done := make(chan engine.Result, 1)
	go func() {
		res, _ := o.Run(context.Background(), "root", defaultParams())
		done <- res
	}()
	<-entered

	_, err := o.Run(context.Background(), "root", defaultParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, taskerr.ErrRunInProgress)

	_, err = o.Run(context.Background(), "other", engine.Params{})
	assert.NoError(t, err, "other roots are not blocked")

	close(release)
	res := <-done
	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	_, err = o.Run(context.Background(), "root", defaultParams())
	assert.NoError(t, err, "guard must be released after the run")
}

func TestRun_RootHeldUntilStragglersReturn(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var startOnce sync.Once
	var inFlight, peak atomic.Int32
	exec := workexec.ExecutorFunc(func(ctx context.Context, id string) (workexec.Item, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		switch id {
		case "root":
			return workexec.Item{Children: []string{"slow", "boom"}}, nil
		case "slow":
			startOnce.Do(func() { close(started) })
			// Deliberately ignores ctx.
			<-unblock
			return workexec.Item{Metric: 1}, nil
		default:
			<-started
			return workexec.Item{}, taskerr.NewFatal(id, "boom", nil)
		}
	})
	o := engine.New(exec, engine.WithGrace(30*time.Millisecond))
	params := engine.Params{MaxConcurrency: 2}

	res, err := o.Run(context.Background(), "root", params)
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Fatal, res.Err.Kind)
	assert.Equal(t, int32(1), inFlight.Load(), "slow is still inside the executor")

	_, err = o.Run(context.Background(), "root", params)
	require.Error(t, err)
	assert.ErrorIs(t, err, taskerr.ErrRunInProgress, "root stays busy while a call is outstanding")

	close(unblock)
	o.Wait()
	assert.Zero(t, inFlight.Load())

	_, err = o.Run(context.Background(), "root", params)
	assert.NoError(t, err, "root is released once the straggler returned")
	o.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_PropagatePolicyAtRoot(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"slow", "bad"}},
		testutil.N{ID: "slow", Metric: 1},
	)
	exec.Delay("slow", time.Minute)
	exec.FailWith("bad", errors.New("flaky"))
	rec := eventsink.NewRecorder()

	params := defaultParams()
	params.Policy = coordinator.PolicyPropagate
	res, err := engine.New(exec, engine.WithObserver(rec)).Run(context.Background(), "root", params)
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Transient, res.Err.Kind)
	assert.Equal(t, "bad", res.Err.ID)
	final, _ := rec.Final("slow")
	assert.Equal(t, node.Cancelled, final)
}

func TestRun_PropagatePolicyCancelsOnlyTheFailingBatch(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"p", "q"}},
		testutil.N{ID: "p", Metric: 10, Kids: []string{"x", "y"}},
		testutil.N{ID: "q", Metric: 2},
		testutil.N{ID: "y", Metric: 1},
	)
	exec.Delay("y", time.Minute)
	exec.FailWith("x", errors.New("flaky"))

	params := defaultParams()
	params.Policy = coordinator.PolicyPropagate
	res, err := engine.New(exec).Run(context.Background(), "root", params)
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(3), v, "cancelled subtree p must contribute nothing")
	assert.True(t, res.Partial)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "x", res.Errors[0].ID)
}

func TestRun_CallTimeoutIsTransient(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"fast", "slow"}},
		testutil.N{ID: "fast", Metric: 1},
		testutil.N{ID: "slow", Metric: 1},
	)
	exec.Delay("slow", time.Minute)

	res, err := engine.New(exec, engine.WithCallTimeout(20*time.Millisecond)).
		Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	v, ok := res.Value()
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
	assert.True(t, res.Partial)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, taskerr.Transient, res.Errors[0].Kind)
	assert.Equal(t, "slow", res.Errors[0].ID)
}

func TestRun_CallerCancellation(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"slow"}},
		testutil.N{ID: "slow", Metric: 1},
	)
	exec.Delay("slow", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	exec.OnCall(func(id string) {
		if id == "slow" {
			cancel()
		}
	})

	res, err := engine.New(exec).Run(ctx, "root", defaultParams())
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Cancelled, res.Err.Kind)
	assert.Empty(t, res.Errors, "cancelled records are never reported")
}

func TestRun_RootFetchFailure(t *testing.T) {
	exec := testutil.Static()
	exec.FailWith("root", errors.New("no such item"))

	res, err := engine.New(exec).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)

	require.NotNil(t, res.Err)
	assert.Equal(t, taskerr.Transient, res.Err.Kind)
	_, ok := res.Value()
	assert.False(t, ok)
}

func TestRun_EmptyRoot(t *testing.T) {
	_, err := engine.New(testutil.Static()).Run(context.Background(), "", defaultParams())
	assert.Error(t, err)
}

func TestRun_CancellationIsIdempotent(t *testing.T) {
	exec := testutil.Static(
		testutil.N{ID: "root", Metric: 1, Kids: []string{"a", "b", "c"}},
		testutil.N{ID: "a", Metric: 1},
		testutil.N{ID: "b", Metric: 1},
	)
	exec.Delay("a", time.Minute)
	exec.Delay("b", time.Minute)
	exec.FailWith("c", taskerr.NewFatal("", "boom", nil))
	rec := eventsink.NewRecorder()

	res, err := engine.New(exec, engine.WithObserver(rec)).Run(context.Background(), "root", defaultParams())
	require.NoError(t, err)
	require.NotNil(t, res.Err)

	for _, id := range []string{"a", "b"} {
		assert.Equal(t, []node.State{node.Running, node.Cancelled}, rec.Transitions(id), id)
	}
	fatal := 0
	for _, r := range res.Errors {
		if r.Kind == taskerr.Fatal {
			fatal++
		}
	}
	assert.Equal(t, 1, fatal)
}
