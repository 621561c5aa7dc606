package eventsink

import (
	"context"
	"log/slog"

	"github.com/vk/fanoutgo/internal/node"
)

// Log writes every transition to a slog.Logger.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a Log sink writing at level.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	return &Log{logger: logger, level: level}
}

// HandleTransition implements node.Observer.
func (l *Log) HandleTransition(e node.Event) {
	l.logger.Log(context.Background(), l.level, "Node state changed.",
		"runID", e.RunID,
		"nodeID", e.NodeID,
		"path", e.Path,
		"fromState", e.From.String(),
		"toState", e.To.String(),
		"timestamp", e.Time,
	)
}
