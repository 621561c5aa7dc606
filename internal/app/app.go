package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/vk/fanoutgo/internal/config"
	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/fetcher"
	"github.com/vk/fanoutgo/internal/fixture"
	"github.com/vk/fanoutgo/internal/workexec"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	model   *config.Model
	run     *config.Run
	exec    workexec.Executor
	closers []io.Closer

	status atomic.Pointer[Status]
	health *fiber.App
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger. Configuration errors
// are fatal startup errors and panic.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	w, logCloser := logWriter(appConfig.LogFile, outW)
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, w)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.", "runs", model.RunNames())

	selected, err := model.SelectRun(appConfig.RunName)
	if err != nil {
		panic(fmt.Errorf("failed to select run: %w", err))
	}
	// The model is private to this App, so overrides are applied in place.
	if appConfig.Root != "" {
		selected.Root = appConfig.Root
	}
	if appConfig.Period > 0 {
		selected.Period = appConfig.Period
	}

	exec, err := newExecutor(model, selected)
	if err != nil {
		panic(fmt.Errorf("failed to build executor: %w", err))
	}
	logger.Debug("Executor configured.", "run", selected.Name, "root", selected.Root)

	a := &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		model:  model,
		run:    selected,
		exec:   exec,
	}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}
	return a
}

// newExecutor builds the Work Executor for the configured source.
func newExecutor(model *config.Model, run *config.Run) (workexec.Executor, error) {
	if model.Static != nil {
		tree, err := fixture.Load(model.Static.File)
		if err != nil {
			return nil, err
		}
		return tree.Executor(), nil
	}
	src := model.HTTP
	return fetcher.New(fetcher.Config{
		ItemURL:      src.ItemURL,
		ChildrenPath: src.ChildrenPath,
		MetricPath:   src.MetricPath,
		IndexID:      src.IndexID,
		IndexURL:     src.IndexURL,
		IndexLimit:   src.IndexLimit,
		Timeout:      run.CallTimeout,
		Headers:      src.Headers,
	})
}

// Settings returns the selected run after overrides were applied.
func (a *App) Settings() config.Run {
	return *a.run
}

// LastStatus returns the outcome of the most recent iteration, or nil.
func (a *App) LastStatus() *Status {
	return a.status.Load()
}

func (a *App) close() {
	// The log file closes last so shutdown messages still reach it.
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("Failed to close resource.", "error", err)
		}
	}
	a.closers = nil
}
