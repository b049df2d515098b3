package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProbe(),
		m.renderSchedule(),
	}

	// Stats sections (only once a cycle has completed)
	if m.hasStats && m.stats.Cycles > 0 {
		sections = append(sections, m.renderOutcomeStats())
		sections = append(sections, m.renderDurationStats())
	}
	if len(m.recent) > 0 {
		sections = append(sections, m.renderRecent())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" monitor-runner │ %s │ %s │ Cycles: %s │ Elapsed: %s ",
		m.monitor,
		GetStatusLabel(m.stats.Last, m.stats.HasLast),
		formatNumber(int64(m.Cycles())),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Probe Configuration
// =============================================================================

func (m Model) renderProbe() string {
	command := m.command
	maxLen := m.width - 30
	if len(command) > maxLen && maxLen > 10 {
		command = command[:maxLen-3] + "..."
	}

	rows := []string{
		RenderKeyValue("Command", command),
		RenderKeyValue("Interval", m.interval.String()),
		RenderKeyValue("Timeout", m.timeout.String()),
	}
	if m.strategy != "" {
		rows = append(rows, RenderKeyValue("Strategy", m.strategy))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Probe")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Schedule
// =============================================================================

func (m Model) renderSchedule() string {
	var status string
	switch {
	case m.phase == "sleeping" && !m.until.IsZero():
		barWidth := m.width - 30
		if barWidth < 20 {
			barWidth = 20
		}
		status = lipgloss.JoinVertical(lipgloss.Left,
			RenderProgressBar(m.SleepProgress(), barWidth),
			statusInfo.Render("Next cycle in "+formatCountdown(m.NextIn())),
		)
	case m.phase == "running":
		status = statusWarning.Render(fmt.Sprintf("Running cycle %d...", m.Cycles()+1))
	case m.phase == "stopped":
		status = mutedStyle.Render("Stopped")
	default:
		status = mutedStyle.Render(m.phase)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Schedule"),
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Outcome Statistics
// =============================================================================

func (m Model) renderOutcomeStats() string {
	s := m.stats

	var rows []string
	for _, r := range outcome.Reasons() {
		n := s.ByReason[r]
		if n == 0 {
			continue
		}
		rows = append(rows, RenderKeyValue(r.String(), formatNumber(int64(n))))
	}

	ratio := s.SuccessRatio()
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Success Ratio:"),
		GetSuccessRatioStyle(ratio).Render(formatPercent(ratio)),
	))

	failStyle := valueStyle
	if s.ConsecutiveFailures > 0 {
		failStyle = valueBadStyle
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render("Failing In A Row:"),
		failStyle.Render(fmt.Sprintf("%d", s.ConsecutiveFailures)),
	))

	if s.KillFailures > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Kill Failures:"),
			valueBadStyle.Render(fmt.Sprintf("%d", s.KillFailures)),
		))
	}
	if s.Overruns > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Overruns:"),
			valueWarnStyle.Render(fmt.Sprintf("%d", s.Overruns)),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Outcomes")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Duration Statistics
// =============================================================================

func (m Model) renderDurationStats() string {
	s := m.stats
	if s.DurationMax == 0 {
		return ""
	}

	rows := []string{
		RenderKeyValue("P50 (median)", formatMs(s.DurationP50)),
		RenderKeyValue("P95", formatMs(s.DurationP95)),
		RenderKeyValue("P99", formatMs(s.DurationP99)),
		RenderKeyValue("Max", formatMs(s.DurationMax)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Probe Duration")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Recent Outcomes
// =============================================================================

func (m Model) renderRecent() string {
	header := tableHeaderStyle.Render(fmt.Sprintf("%-8s %-10s %-10s %s", "Cycle", "Started", "Duration", "Result"))

	rows := []string{header}
	// newest first
	for i := len(m.recent) - 1; i >= 0; i-- {
		o := m.recent[i]
		row := fmt.Sprintf("%-8d %-10s %-10s ",
			o.Cycle,
			o.Started.Format("15:04:05"),
			formatMs(o.Duration),
		)
		style := tableRowEvenStyle
		if (len(m.recent)-1-i)%2 == 1 {
			style = tableRowOddStyle
		}
		rows = append(rows, style.Render(row)+RenderReason(o))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent Runs")}, rows...)...,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}
