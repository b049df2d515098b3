package stats

// This file renders the summary printed when the runner exits.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds the context printed alongside the aggregates.
type SummaryConfig struct {
	// Monitor is the "app/name" key.
	Monitor string

	// Duration is the total run duration.
	Duration time.Duration

	Interval time.Duration
	Timeout  time.Duration
	Strategy string

	// MetricsAddr is the Prometheus endpoint address, if served.
	MetricsAddr string
}

// FormatSummary renders s for display at program exit.
func FormatSummary(s Snapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                          monitor-runner Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	if cfg.Monitor != "" {
		fmt.Fprintf(&b, "Monitor:                %s\n", cfg.Monitor)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Interval / Timeout:     %s / %s\n", cfg.Interval, cfg.Timeout)
	if cfg.Strategy != "" {
		fmt.Fprintf(&b, "Timeout Strategy:       %s\n", cfg.Strategy)
	}
	fmt.Fprintf(&b, "Cycles:                 %s\n\n", FormatNumber(int64(s.Cycles)))

	if s.Cycles == 0 {
		b.WriteString("(no cycles completed)\n\n")
		writeFooter(&b, cfg)
		return b.String()
	}

	section(&b, "Outcomes")
	fmt.Fprintf(&b, "  %-20s %12s %10s\n", "Reason", "Count", "Share")
	b.WriteString("  " + strings.Repeat("─", 44) + "\n")
	for _, r := range outcome.Reasons() {
		n := s.ByReason[r]
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-20s %12d %9.1f%%\n", r, n, float64(n)*100/float64(s.Cycles))
	}
	fmt.Fprintf(&b, "\n  Success Ratio:        %.2f%%\n", s.SuccessRatio()*100)
	fmt.Fprintf(&b, "  Longest Failure Run:  %d\n", s.MaxConsecutive)
	if s.ConsecutiveFailures > 0 {
		fmt.Fprintf(&b, "  Failing Now:          %d in a row\n", s.ConsecutiveFailures)
	}
	b.WriteString("\n")

	section(&b, "Probe Duration")
	fmt.Fprintf(&b, "  Min:                  %s\n", FormatMs(s.DurationMin))
	fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(s.DurationP50))
	fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(s.DurationP95))
	fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(s.DurationP99))
	fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(s.DurationMax))

	if len(s.ExitCodes) > 0 {
		section(&b, "Exit Codes")
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if notes := renderFootnotes(s); notes != "" {
		b.WriteString(notes)
	}

	writeFooter(&b, cfg)
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (79 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(ruleHeavy)
}

// renderFootnotes lists operational problems that are not probe failures.
func renderFootnotes(s Snapshot) string {
	var notes []string
	if s.KillFailures > 0 {
		notes = append(notes, fmt.Sprintf("Kill failures: %d (probe may have outlived its slot)", s.KillFailures))
	}
	if s.Overruns > 0 {
		notes = append(notes, fmt.Sprintf("Interval overruns: %d (next cycle started immediately)", s.Overruns))
	}
	if s.ArchiveErrors > 0 {
		notes = append(notes, fmt.Sprintf("Artifact archive errors: %d", s.ArchiveErrors))
	}
	if s.ReportErrors > 0 {
		notes = append(notes, fmt.Sprintf("Report delivery errors: %d", s.ReportErrors))
	}
	if len(notes) == 0 {
		return ""
	}

	var b strings.Builder
	section(&b, "Footnotes")
	for i, n := range notes {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, n)
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(ok)"
	case 1:
		return "(error)"
	case 126:
		return "(not executable)"
	case 127:
		return "(not found)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
