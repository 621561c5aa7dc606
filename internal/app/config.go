package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // hcl file or directory
	RunName    string
	// Root overrides the root identifier of the selected run.
	Root string

	LogFormat       string
	LogLevel        string
	LogFile         string
	HealthcheckPort int

	// Iterations limits how many times the tree is executed; 0 means once
	// without a period and forever with one.
	Iterations int64
	// Period overrides the period of the selected run.
	Period time.Duration
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Iterations < 0 {
		return nil, errors.New("iterations must not be negative")
	}
	if cfg.Period < 0 {
		return nil, errors.New("period must not be negative")
	}
	return &cfg, nil
}
