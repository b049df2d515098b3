package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/artifacts"
	"github.com/randomizedcoder/go-monitor-runner/internal/metrics"
	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/report"
	"github.com/randomizedcoder/go-monitor-runner/internal/stats"
)

// Pipeline is the Sink that runs after every cycle: archive artifacts for
// failures, report, then update metrics, statistics and the dashboard.
// Every field is optional.
type Pipeline struct {
	Hook      artifacts.Hook
	Reporters []report.Reporter
	Metrics   *metrics.Collector
	Stats     *stats.Tracker
	Logger    *slog.Logger

	// OnOutcome sees the final outcome, after archival.
	OnOutcome func(o outcome.Outcome)
}

// Deliver runs the pipeline for o and returns it with artifact URLs set.
// Cancellation of ctx does not stop delivery: the cycle that was running
// at shutdown is still reported.
func (p *Pipeline) Deliver(ctx context.Context, o outcome.Outcome) outcome.Outcome {
	ctx = context.WithoutCancel(ctx)
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if o.Archivable() && p.Hook != nil {
		res, err := p.Hook.Archive(ctx, o)
		o.ArtifactURL = res.ArtifactURL
		o.ImageURL = res.ImageURL
		if p.Metrics != nil {
			p.Metrics.RecordArchive(err)
		}
		if err != nil {
			logger.Warn("artifact_archive_failed", "run_id", o.RunID.String(), "error", err)
			if p.Stats != nil {
				p.Stats.RecordArchiveError()
			}
		}
	}

	for _, r := range p.Reporters {
		if err := r.Report(ctx, o); err != nil {
			logger.Warn("report_failed", "reporter", r.Name(), "run_id", o.RunID.String(), "error", err)
			if p.Metrics != nil {
				p.Metrics.RecordReportError(r.Name())
			}
			if p.Stats != nil {
				p.Stats.RecordReportError()
			}
		}
	}

	if p.Stats != nil {
		p.Stats.Record(o)
	}
	if p.Metrics != nil {
		p.Metrics.RecordOutcome(o)
		if p.Stats != nil {
			p.Metrics.SetQuantiles(p.Stats.Quantile(0.50), p.Stats.Quantile(0.95), p.Stats.Quantile(0.99))
		}
	}
	if p.OnOutcome != nil {
		p.OnOutcome(o)
	}
	return o
}

// RecordOverrun updates the overrun counters. It matches
// SchedulerConfig.OnOverrun.
func (p *Pipeline) RecordOverrun(_ outcome.Outcome, _ time.Duration) {
	if p.Metrics != nil {
		p.Metrics.RecordOverrun()
	}
	if p.Stats != nil {
		p.Stats.RecordOverrun()
	}
}
