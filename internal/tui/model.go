package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/stats"
)

// DefaultHistory is how many recent outcomes the dashboard lists.
const DefaultHistory = 10

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// OutcomeMsg carries a completed cycle.
type OutcomeMsg struct {
	Outcome outcome.Outcome
}

// PhaseMsg reports what the scheduler is doing. Until is the wake time
// while sleeping, else zero.
type PhaseMsg struct {
	Phase string
	Until time.Time
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	monitor     string
	command     string
	interval    time.Duration
	timeout     time.Duration
	strategy    string
	metricsAddr string
	history     int

	// Current state
	stats      stats.Snapshot
	hasStats   bool
	recent     []outcome.Outcome
	phase      string
	until      time.Time
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	statsSource StatsSource
	now         func() time.Time

	// Quit flag
	quitting bool
}

// StatsSource provides aggregated statistics.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Config holds TUI configuration.
type Config struct {
	Monitor     string
	Command     string
	Interval    time.Duration
	Timeout     time.Duration
	Strategy    string
	MetricsAddr string
	StatsSource StatsSource

	// History caps the recent-outcome table; 0 means DefaultHistory.
	History int

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	history := cfg.History
	if history <= 0 {
		history = DefaultHistory
	}
	start := now()
	return Model{
		monitor:     cfg.Monitor,
		command:     cfg.Command,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		strategy:    cfg.Strategy,
		metricsAddr: cfg.MetricsAddr,
		history:     history,
		statsSource: cfg.StatsSource,
		now:         now,
		phase:       "starting",
		startTime:   start,
		lastUpdate:  start,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program,
	// so no tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case OutcomeMsg:
		m.recent = append(m.recent, msg.Outcome)
		if len(m.recent) > m.history {
			m.recent = append([]outcome.Outcome(nil), m.recent[len(m.recent)-m.history:]...)
		}
		m.refresh()
		return m, nil

	case PhaseMsg:
		m.phase = msg.Phase
		m.until = msg.Until
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.statsSource != nil {
		m.stats = m.statsSource.Snapshot()
		m.hasStats = true
	}
	m.lastUpdate = m.now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the runner started.
func (m Model) Elapsed() time.Duration {
	return m.now().Sub(m.startTime)
}

// Cycles returns the completed cycle count.
func (m Model) Cycles() uint64 {
	return m.stats.Cycles
}

// Recent returns the listed outcomes, oldest first.
func (m Model) Recent() []outcome.Outcome {
	return m.recent
}

// NextIn returns the time until the next cycle while sleeping, else 0.
func (m Model) NextIn() time.Duration {
	if m.until.IsZero() {
		return 0
	}
	d := m.until.Sub(m.now())
	if d < 0 {
		return 0
	}
	return d
}

// SleepProgress is how much of the pending sleep has passed (0.0 to 1.0).
func (m Model) SleepProgress() float64 {
	if m.interval <= 0 || m.until.IsZero() {
		return 0
	}
	p := 1 - float64(m.NextIn())/float64(m.interval)
	if p < 0 {
		return 0
	}
	return p
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendOutcome sends a completed cycle to the TUI.
func SendOutcome(p *tea.Program, o outcome.Outcome) {
	if p != nil {
		p.Send(OutcomeMsg{Outcome: o})
	}
}

// SendPhase sends a scheduler phase change to the TUI.
func SendPhase(p *tea.Program, phase string, until time.Time) {
	if p != nil {
		p.Send(PhaseMsg{Phase: phase, Until: until})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatMs formats a duration as milliseconds.
func formatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatCountdown formats a short wait as seconds with one decimal.
func formatCountdown(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
