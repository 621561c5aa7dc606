package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/vk/fanoutgo/internal/coordinator"
	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/engine"
	"github.com/vk/fanoutgo/internal/eventsink"
	"github.com/vk/fanoutgo/internal/node"
	"github.com/vk/fanoutgo/internal/runguard"
	"github.com/vk/fanoutgo/internal/scheduler"
	"github.com/vk/fanoutgo/internal/taskerr"
)

// Run executes the selected run once, or on its period until the iteration
// limit is reached or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.close()

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(ctx, a.config.HealthcheckPort)
		defer a.closeHealthcheckServer(ctx)
	}

	policy, err := coordinator.ParsePolicy(a.run.TransientPolicy)
	if err != nil {
		return fmt.Errorf("run '%s': %w", a.run.Name, err)
	}
	guard, err := a.newGuard(ctx)
	if err != nil {
		return err
	}
	obs, err := a.newObserver(ctx)
	if err != nil {
		return err
	}

	orch := engine.New(a.exec,
		engine.WithGrace(a.run.GracePeriod),
		engine.WithCallTimeout(a.run.CallTimeout),
		engine.WithGuard(guard),
		engine.WithObserver(obs),
		engine.WithLogger(a.logger),
	)
	params := engine.Params{
		MaxConcurrency: a.run.MaxConcurrency,
		MaxCalls:       a.run.MaxCalls,
		Policy:         policy,
	}
	defer orch.Wait()
	iterate := func(ctx context.Context, iteration int64) error {
		return a.iterate(ctx, orch, params, iteration)
	}

	a.logger.Info("🚀 Starting tree execution...", "run", a.run.Name, "root", a.run.Root)
	switch {
	case a.run.Period > 0:
		sched := scheduler.NewPeriodic(a.run.Period, iterate, scheduler.WithMaxIterations(a.config.Iterations))
		err = sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err == nil && sched.Stats().Failures > 0 && a.config.Iterations > 0 {
			err = fmt.Errorf("%d of %d iterations failed", sched.Stats().Failures, sched.Stats().Iterations)
		}
	case a.config.Iterations > 1:
		return fmt.Errorf("%d iterations requested but run '%s' has no period", a.config.Iterations, a.run.Name)
	default:
		err = iterate(ctx, 1)
	}
	if err != nil {
		return err
	}

	a.logger.Info("🏁 Execution finished.")
	a.logger.Debug("App.Run method finished.")
	return nil
}

// iterate performs one run of the tree and publishes its outcome.
func (a *App) iterate(ctx context.Context, orch *engine.Orchestrator, params engine.Params, iteration int64) error {
	logger := ctxlog.FromContext(ctx).With("iteration", iteration)

	res, err := orch.Run(ctx, a.run.Root, params)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.status.Store(&Status{
		Run:        a.run.Name,
		Iteration:  iteration,
		FinishedAt: time.Now(),
		Result:     res,
	})

	for _, id := range slices.Sorted(maps.Keys(res.Children)) {
		logger.Info(fmt.Sprintf("item %s has %d", id, res.Children[id]), "item", id, "aggregate", res.Children[id])
	}
	logger.Info(fmt.Sprintf("took %.2f seconds and %d fetches", res.Stats.Elapsed.Seconds(), res.Stats.Calls),
		"peakConcurrency", res.Stats.Peak, "p99", res.Stats.Latency.P99, "failed", res.Failed())

	if res.Err != nil {
		if res.Err.Kind == taskerr.Cancelled && ctx.Err() != nil {
			// Shutdown stopped the iteration; that is not a failed iteration.
			logger.Info("Iteration cancelled.", "reason", ctx.Err())
			return nil
		}
		return fmt.Errorf("execution failed: %w", res.Err)
	}
	if res.Partial {
		logger.Warn("Aggregate is partial.", "aggregate", res.Aggregate, "errors", len(res.Errors))
	}
	return nil
}

// newGuard returns the shared Redis guard when one is configured and an
// in-process guard otherwise.
func (a *App) newGuard(ctx context.Context) (runguard.Guard, error) {
	g := a.model.Guard
	if g == nil {
		return runguard.NewLocal(), nil
	}
	guard, err := runguard.DialRedis(ctx, runguard.RedisOptions{
		Addr:     g.Addr,
		Password: g.Password,
		DB:       g.DB,
		Prefix:   g.Prefix,
		TTL:      g.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure run guard: %w", err)
	}
	a.closers = append(a.closers, guard)
	a.logger.Debug("Redis run guard connected.", "addr", g.Addr)
	return guard, nil
}

// newObserver logs every transition at debug level and publishes it to
// socket.io when an events block is configured.
func (a *App) newObserver(ctx context.Context) (node.Observer, error) {
	logSink := eventsink.NewLog(a.logger, slog.LevelDebug)
	ev := a.model.Events
	if ev == nil {
		return logSink, nil
	}
	sio, err := eventsink.DialSocketIO(ctx, eventsink.SocketIOOptions{
		URL:                ev.URL,
		Namespace:          ev.Namespace,
		Event:              ev.Event,
		InsecureSkipVerify: ev.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure event sink: %w", err)
	}
	a.closers = append(a.closers, sio)
	return eventsink.Multi(logSink, sio), nil
}
