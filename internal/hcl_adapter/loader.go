package hcl_adapter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/fanoutgo/internal/config"
	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	evalCtx *hcl.EvalContext
}

// NewLoader creates a new HCL configuration loader that resolves env.* from
// the process environment.
func NewLoader() *Loader {
	return &Loader{evalCtx: processEvalContext()}
}

// NewLoaderWithEnv creates a loader that resolves env.* from environ, given
// in os.Environ form.
func NewLoaderWithEnv(environ []string) *Loader {
	return &Loader{evalCtx: newEvalContext(environ)}
}

// Load parses every .hcl file found at paths and merges the blocks into a
// single validated model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := &config.Model{Runs: make(map[string]*config.Run)}

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, l.evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := l.merge(model, &root, filepath.Dir(file)); err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("HCL loading complete.", "runs", len(model.Runs))
	return model, nil
}

// merge translates the blocks of one file into the model. Relative file
// references are resolved against dir.
func (l *Loader) merge(model *config.Model, root *fileRoot, dir string) error {
	for _, rb := range root.Runs {
		if _, dup := model.Runs[rb.Name]; dup {
			return fmt.Errorf("run '%s' is defined more than once", rb.Name)
		}
		run, err := translateRun(rb)
		if err != nil {
			return err
		}
		model.Runs[run.Name] = run
	}

	for _, sb := range root.Sources {
		switch sb.Type {
		case "http":
			var body httpSourceBody
			if diags := gohcl.DecodeBody(sb.Body, l.evalCtx, &body); diags.HasErrors() {
				return fmt.Errorf(`failed to decode source "http": %w`, diags)
			}
			if model.HTTP != nil {
				return errors.New(`source "http" is defined more than once`)
			}
			model.HTTP = &config.HTTPSource{
				ItemURL:      body.ItemURL,
				ChildrenPath: body.ChildrenPath,
				MetricPath:   body.MetricPath,
				IndexID:      body.IndexID,
				IndexURL:     body.IndexURL,
				IndexLimit:   body.IndexLimit,
				Headers:      body.Headers,
			}
		case "static":
			var body staticSourceBody
			if diags := gohcl.DecodeBody(sb.Body, l.evalCtx, &body); diags.HasErrors() {
				return fmt.Errorf(`failed to decode source "static": %w`, diags)
			}
			if model.Static != nil {
				return errors.New(`source "static" is defined more than once`)
			}
			file := body.File
			if file != "" && !filepath.IsAbs(file) {
				file = filepath.Join(dir, file)
			}
			model.Static = &config.StaticSource{File: file}
		default:
			return fmt.Errorf("unknown source type '%s': must be one of http, static", sb.Type)
		}
	}

	for _, gb := range root.Guards {
		if gb.Type != "redis" {
			return fmt.Errorf("unknown guard type '%s': must be redis", gb.Type)
		}
		ttl, err := parseDuration("ttl", gb.TTL)
		if err != nil {
			return err
		}
		model.Guard = &config.Guard{
			Type:     gb.Type,
			Addr:     gb.Addr,
			Password: gb.Password,
			DB:       gb.DB,
			Prefix:   gb.Prefix,
			TTL:      ttl,
		}
	}

	for _, eb := range root.Events {
		if eb.Type != "socketio" {
			return fmt.Errorf("unknown events type '%s': must be socketio", eb.Type)
		}
		model.Events = &config.Events{
			Type:               eb.Type,
			URL:                eb.URL,
			Namespace:          eb.Namespace,
			Event:              eb.Event,
			InsecureSkipVerify: eb.InsecureSkipVerify,
		}
	}
	return nil
}

func translateRun(rb *runBlock) (*config.Run, error) {
	run := &config.Run{
		Name:            rb.Name,
		Root:            rb.Root,
		MaxConcurrency:  rb.MaxConcurrency,
		MaxCalls:        rb.MaxCalls,
		TransientPolicy: rb.TransientPolicy,
	}
	var err error
	if run.GracePeriod, err = parseDuration("grace_period", rb.GracePeriod); err != nil {
		return nil, fmt.Errorf("run '%s': %w", rb.Name, err)
	}
	if run.CallTimeout, err = parseDuration("call_timeout", rb.CallTimeout); err != nil {
		return nil, fmt.Errorf("run '%s': %w", rb.Name, err)
	}
	if run.Period, err = parseDuration("period", rb.Period); err != nil {
		return nil, fmt.Errorf("run '%s': %w", rb.Name, err)
	}
	return run, nil
}

func parseDuration(attr, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", attr, s, err)
	}
	return d, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	return fsutil.CollectFiles(paths, ".hcl")
}
