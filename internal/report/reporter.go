package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// Reporter receives every outcome. Errors are per-outcome and never stop
// the runner.
type Reporter interface {
	Name() string
	Report(ctx context.Context, o outcome.Outcome) error
}

// LogReporter writes the human-readable line for each cycle.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Name() string { return "log" }

func (r *LogReporter) Report(ctx context.Context, o outcome.Outcome) error {
	level := slog.LevelInfo
	if o.Failed() {
		level = slog.LevelWarn
	}
	attrs := []any{
		"app", o.AppName,
		"name", o.TestName,
		"reason", o.Reason.String(),
		"ret_code", o.RetCode(),
		"duration_ms", o.Duration.Milliseconds(),
	}
	if o.Signal != "" {
		attrs = append(attrs, "signal", o.Signal)
	}
	if o.KillFailed {
		attrs = append(attrs, "kill_failed", true)
	}
	if o.Overrun {
		attrs = append(attrs, "overrun", true)
	}
	if o.Err != "" {
		attrs = append(attrs, "error", o.Err)
	}
	if o.ArtifactURL != "" {
		attrs = append(attrs, "artifact_url", o.ArtifactURL)
	}
	if o.ImageURL != "" {
		attrs = append(attrs, "image_url", o.ImageURL)
	}
	r.logger.Log(ctx, level, o.Summary(), attrs...)
	return nil
}

// Multi fans an outcome out to several reporters. Every reporter runs even
// if an earlier one fails.
type Multi []Reporter

func (m Multi) Name() string { return "multi" }

func (m Multi) Report(ctx context.Context, o outcome.Outcome) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}
