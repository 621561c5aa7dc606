// Package fixture loads static trees from YAML files.
//
// A fixture names its root, lists every node with its metric and children,
// and may inject failures and latency:
//
//	root: top
//	nodes:
//	  top: {metric: 0, children: [a, b]}
//	  a: {metric: 3}
//	  b: {metric: 1}
//	failures:
//	  b: {kind: transient, message: upstream returned 503}
//	delays:
//	  a: 50ms
package fixture

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/workexec"
)

// Failure is an injected error.
type Failure struct {
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
}

// Tree is a decoded fixture file.
type Tree struct {
	Root     string                   `yaml:"root"`
	Nodes    map[string]workexec.Item `yaml:"nodes"`
	Failures map[string]Failure       `yaml:"failures"`
	Delays   map[string]string        `yaml:"delays"`
}

// Load reads and validates the fixture at path.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture '%s': %w", path, err)
	}
	tree, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture '%s': %w", path, err)
	}
	return tree, nil
}

// Parse decodes and validates fixture data.
func Parse(data []byte) (*Tree, error) {
	var tree Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := tree.validate(); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (t *Tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("fixture has no nodes")
	}
	if t.Root != "" {
		if _, ok := t.Nodes[t.Root]; !ok {
			if _, failing := t.Failures[t.Root]; !failing {
				return fmt.Errorf("root %q is not a node", t.Root)
			}
		}
	}
	for id, f := range t.Failures {
		if _, err := f.record(id); err != nil {
			return err
		}
	}
	for id, d := range t.Delays {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid delay for %q: %w", id, err)
		}
	}
	return nil
}

func (f Failure) record(id string) (*taskerr.Error, error) {
	msg := f.Message
	if msg == "" {
		msg = "injected failure"
	}
	switch strings.ToLower(f.Kind) {
	case "", "transient":
		return taskerr.NewTransient(id, msg, nil), nil
	case "fatal":
		return taskerr.NewFatal(id, msg, nil), nil
	default:
		return nil, fmt.Errorf("invalid failure kind %q for %q: must be one of transient, fatal", f.Kind, id)
	}
}

// Executor builds a Static executor serving the fixture.
func (t *Tree) Executor() *workexec.Static {
	s := workexec.NewStatic(t.Nodes)
	for id, f := range t.Failures {
		rec, _ := f.record(id)
		s.FailWith(id, rec)
	}
	for id, d := range t.Delays {
		dur, _ := time.ParseDuration(d)
		s.Delay(id, dur)
	}
	return s
}
