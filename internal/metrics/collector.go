// Package metrics provides Prometheus metrics for monitor-runner.
//
// One runner supervises one monitor, so every series is keyed only by the
// small fixed label sets below. The app and name labels live on
// monitor_runner_info; join on it in queries.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

const namespace = "monitor_runner"

// durationBuckets spans sub-second probes up to multi-minute timeouts.
var durationBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1, 2.5, 5, 10, 30, 60, 120, 300,
}

// =============================================================================
// Collector
// =============================================================================

// Collector owns every runner metric and remembers the last outcome for the
// /last and /ready endpoints.
type Collector struct {
	info            *prometheus.GaugeVec
	intervalSeconds prometheus.Gauge
	timeoutSeconds  prometheus.Gauge

	cycles          *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastExitCode    prometheus.Gauge
	lastRunTime     prometheus.Gauge
	lastSuccess     prometheus.Gauge
	consecutiveFail prometheus.Gauge
	overruns        prometheus.Counter
	killFailures    prometheus.Counter
	archives        *prometheus.CounterVec
	reportErrors    *prometheus.CounterVec

	durationP50 prometheus.Gauge
	durationP95 prometheus.Gauge
	durationP99 prometheus.Gauge

	mu          sync.Mutex
	last        outcome.Outcome
	hasLast     bool
	consecutive int
}

// CollectorConfig holds the static labels and settings exported once.
type CollectorConfig struct {
	AppName  string
	TestName string
	Strategy string
	Interval time.Duration
	Timeout  time.Duration
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the supervised monitor (value always 1)",
		}, []string{"app", "name", "strategy"}),
		intervalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interval_seconds",
			Help:      "Configured start-to-start cycle interval",
		}),
		timeoutSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timeout_seconds",
			Help:      "Configured per-run probe timeout",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed probe cycles by outcome reason",
		}, []string{"reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Probe wall-clock duration from launch to reap",
			Buckets:   durationBuckets,
		}),
		lastExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_exit_code",
			Help:      "Exit code of the last run (-1 = none)",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix start time of the last completed run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run exited 0, else 0",
		}),
		consecutiveFail: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Failed runs since the last success",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overruns_total",
			Help:      "Cycles that used the whole interval, so the next one started immediately",
		}),
		killFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kill_failures_total",
			Help:      "Timed-out probes that could not be killed",
		}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_archives_total",
			Help:      "Artifact archive attempts by result",
		}, []string{"result"}),
		reportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_errors_total",
			Help:      "Outcome deliveries that failed, by reporter",
		}, []string{"reporter"}),
		durationP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p50_seconds",
			Help:      "Probe duration 50th percentile (median)",
		}),
		durationP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p95_seconds",
			Help:      "Probe duration 95th percentile",
		}),
		durationP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_p99_seconds",
			Help:      "Probe duration 99th percentile",
		}),
	}

	registry.MustRegister(
		c.info,
		c.intervalSeconds,
		c.timeoutSeconds,
		c.cycles,
		c.runDuration,
		c.lastExitCode,
		c.lastRunTime,
		c.lastSuccess,
		c.consecutiveFail,
		c.overruns,
		c.killFailures,
		c.archives,
		c.reportErrors,
		c.durationP50,
		c.durationP95,
		c.durationP99,
	)

	// Set initial values
	c.info.WithLabelValues(cfg.AppName, cfg.TestName, cfg.Strategy).Set(1)
	c.intervalSeconds.Set(cfg.Interval.Seconds())
	c.timeoutSeconds.Set(cfg.Timeout.Seconds())
	c.lastExitCode.Set(outcome.NoExitCode)
	for _, r := range outcome.Reasons() {
		c.cycles.WithLabelValues(r.String())
	}
	for _, result := range []string{"ok", "error"} {
		c.archives.WithLabelValues(result)
	}

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// RecordOutcome updates every per-cycle metric from o.
func (c *Collector) RecordOutcome(o outcome.Outcome) {
	c.cycles.WithLabelValues(o.Reason.String()).Inc()
	if o.Reason != outcome.LaunchError {
		c.runDuration.Observe(o.Duration.Seconds())
	}
	c.lastExitCode.Set(float64(o.RetCode()))
	c.lastRunTime.Set(float64(o.Started.UnixNano()) / 1e9)
	if o.KillFailed {
		c.killFailures.Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Failed() {
		c.consecutive++
		c.lastSuccess.Set(0)
	} else {
		c.consecutive = 0
		c.lastSuccess.Set(1)
	}
	c.consecutiveFail.Set(float64(c.consecutive))
	c.last = o
	c.hasLast = true
}

// RecordOverrun counts a cycle that left no time to sleep.
func (c *Collector) RecordOverrun() {
	c.overruns.Inc()
}

// RecordArchive counts an artifact archive attempt.
func (c *Collector) RecordArchive(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.archives.WithLabelValues(result).Inc()
}

// RecordReportError counts a failed delivery to reporter.
func (c *Collector) RecordReportError(reporter string) {
	c.reportErrors.WithLabelValues(reporter).Inc()
}

// SetQuantiles publishes precomputed duration percentiles.
func (c *Collector) SetQuantiles(p50, p95, p99 time.Duration) {
	c.durationP50.Set(p50.Seconds())
	c.durationP95.Set(p95.Seconds())
	c.durationP99.Set(p99.Seconds())
}

// =============================================================================
// State for HTTP endpoints
// =============================================================================

// Last returns the most recent outcome, if any cycle has completed.
func (c *Collector) Last() (outcome.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Ready reports whether at least one cycle has completed.
func (c *Collector) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLast
}
