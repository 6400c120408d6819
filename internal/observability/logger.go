// Package observability carries the logging and metrics contracts shared by
// the sync path and the academy service, with process-local and Prometheus
// exporters.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Logger is the structured logging surface used across academycore.
// Its method set matches *slog.Logger so either can be supplied.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// NewSlogLogger builds a text slog logger writing to w at the named level
// (debug, info, warn, error; unknown values mean info).
func NewSlogLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// QueueGauge receives the pending offline action count after every queue change.
type QueueGauge interface {
	SetQueueDepth(n int)
}

// NoopMetrics drops observations.
type NoopMetrics struct{}

func (NoopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (NoopMetrics) SetQueueDepth(int)                                    {}
