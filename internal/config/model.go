package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Defaults applied to omitted run settings.
const (
	DefaultMaxConcurrency = 3
	DefaultGracePeriod    = 2 * time.Second
	DefaultCallTimeout    = 10 * time.Second
)

// Model is the unified, format-agnostic representation of the application
// configuration.
type Model struct {
	Runs   map[string]*Run
	HTTP   *HTTPSource
	Static *StaticSource
	Guard  *Guard
	Events *Events
}

// Run is one named run definition.
type Run struct {
	Name            string
	Root            string
	MaxConcurrency  int
	MaxCalls        int64
	TransientPolicy string
	GracePeriod     time.Duration
	CallTimeout     time.Duration
	// Period re-runs the tree on a schedule; 0 runs it once.
	Period time.Duration
}

// HTTPSource configures the HTTP JSON executor.
type HTTPSource struct {
	ItemURL      string
	ChildrenPath string
	MetricPath   string
	IndexID      string
	IndexURL     string
	IndexLimit   int
	Headers      map[string]string
}

// StaticSource points at a YAML fixture tree.
type StaticSource struct {
	File string
}

// Guard configures a shared run guard.
type Guard struct {
	Type     string
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Events configures where node transitions are published.
type Events struct {
	Type               string
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
}

// SelectRun returns the run called name. An empty name selects the only run
// when exactly one is defined.
func (m *Model) SelectRun(name string) (*Run, error) {
	if name == "" {
		if len(m.Runs) == 1 {
			for _, r := range m.Runs {
				return r, nil
			}
		}
		return nil, fmt.Errorf("a run name is required when %d runs are defined: %s", len(m.Runs), strings.Join(m.RunNames(), ", "))
	}
	r, ok := m.Runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' is not defined", name)
	}
	return r, nil
}

// RunNames returns the sorted names of all runs.
func (m *Model) RunNames() []string {
	names := make([]string, 0, len(m.Runs))
	for n := range m.Runs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks cross-block constraints and applies defaults.
func (m *Model) Validate() error {
	if len(m.Runs) == 0 {
		return errors.New("no run block defined")
	}
	switch {
	case m.HTTP == nil && m.Static == nil:
		return errors.New("no source block defined")
	case m.HTTP != nil && m.Static != nil:
		return errors.New("only one source block may be defined")
	}
	for _, r := range m.Runs {
		if r.Root == "" {
			return fmt.Errorf("run '%s': root is required", r.Name)
		}
		if r.MaxConcurrency <= 0 {
			r.MaxConcurrency = DefaultMaxConcurrency
		}
		if r.GracePeriod <= 0 {
			r.GracePeriod = DefaultGracePeriod
		}
		if r.CallTimeout <= 0 {
			r.CallTimeout = DefaultCallTimeout
		}
		if r.Period < 0 {
			return fmt.Errorf("run '%s': period must not be negative", r.Name)
		}
	}
	if m.HTTP != nil && m.HTTP.ItemURL == "" {
		return errors.New(`source "http": item_url is required`)
	}
	if m.Static != nil && m.Static.File == "" {
		return errors.New(`source "static": file is required`)
	}
	return nil
}
