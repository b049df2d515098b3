// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// HeadroomRatio is the share of the interval a timeout may use before the
// headroom check warns.
const HeadroomRatio = 0.9

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options describes what the runner is about to do.
type Options struct {
	ProbeArgv []string
	Interval  time.Duration
	Timeout   time.Duration

	// ArchiveDir is checked only when Artifacts is set.
	ArchiveDir string
	Artifacts  bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkProbe(opts.ProbeArgv))
	add(checkFileDescriptors())
	add(checkProcessLimit())
	if opts.Artifacts {
		add(checkArchiveDir(opts.ArchiveDir))
	}
	// warning only
	add(checkHeadroom(opts.Interval, opts.Timeout))

	return result
}

// checkProbe verifies the probe executable resolves.
func checkProbe(argv []string) Check {
	if len(argv) == 0 {
		return Check{
			Name:    "probe_command",
			Passed:  false,
			Message: "no probe command configured",
		}
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return Check{
			Name:    "probe_command",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", argv[0], err),
		}
	}
	return Check{
		Name:    "probe_command",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkFileDescriptors verifies enough file descriptors for the probe's
// pipes plus the metrics server and reporters.
func checkFileDescriptors() Check {
	const required = 64

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}
	actual := int(limit.Cur)
	if limit.Cur > 1<<30 {
		actual = 1 << 30
	}

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkProcessLimit verifies the probe and anything it forks can start.
// syscall.RLIMIT_NPROC is not exported, so the soft limit is read from
// /proc/self/limits.
func checkProcessLimit() Check {
	const required = 16

	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	actual := parseMaxProcesses(string(data))
	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// parseMaxProcesses returns the soft "Max processes" limit, 1e6 for
// unlimited, or 0 when absent.
func parseMaxProcesses(limits string) int {
	for _, line := range strings.Split(limits, "\n") {
		if !strings.HasPrefix(line, "Max processes") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0
		}
		if fields[2] == "unlimited" {
			return 1000000
		}
		var n int
		fmt.Sscanf(fields[2], "%d", &n)
		return n
	}
	return 0
}

// checkArchiveDir verifies artifacts can be written.
func checkArchiveDir(dir string) Check {
	if dir == "" {
		return Check{
			Name:    "archive_dir",
			Passed:  false,
			Message: "artifacts enabled but no archive directory set",
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "archive_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "archive_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}
	f.Close()
	os.Remove(f.Name())

	abs, _ := filepath.Abs(dir)
	return Check{
		Name:    "archive_dir",
		Passed:  true,
		Message: fmt.Sprintf("%s writable", abs),
	}
}

// checkHeadroom warns when the timeout leaves little of the interval for
// killing, reporting and archiving.
func checkHeadroom(interval, timeout time.Duration) Check {
	if interval <= 0 {
		return Check{
			Name:    "timeout_headroom",
			Passed:  true,
			Warning: true,
			Message: "no interval configured",
		}
	}
	ratio := float64(timeout) / float64(interval)
	return Check{
		Name:    "timeout_headroom",
		Passed:  true,
		Warning: ratio > HeadroomRatio,
		Message: fmt.Sprintf("timeout %s is %.0f%% of interval %s", timeout, ratio*100, interval),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			if fix := suggestFix(check.Name); fix != "" {
				fmt.Fprintf(w, "    Fix: %s\n", fix)
			}
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 256 (or edit /etc/security/limits.conf)"
	case "probe_command":
		return "use an absolute path in test_cmd or fix PATH"
	case "archive_dir":
		return "set archive_dir to a writable directory"
	case "timeout_headroom":
		return "lower --timeout or raise --interval"
	default:
		return ""
	}
}
