package tui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/stats"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestModel(t *testing.T, src StatsSource) (Model, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := New(Config{
		Monitor:     "shop/checkout",
		Command:     "/usr/local/bin/probe --fast",
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		Strategy:    "watchdog",
		MetricsAddr: "127.0.0.1:17091",
		StatsSource: src,
		History:     3,
		Now:         clock.Now,
	})
	// wide enough that nothing wraps
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	return next.(Model), clock
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	m := New(Config{})
	if m.history != DefaultHistory {
		t.Errorf("history = %d, want %d", m.history, DefaultHistory)
	}
	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.phase != "starting" {
		t.Errorf("phase = %q, want starting", m.phase)
	}
	if m.Init() == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		name     string
		msg      tea.KeyMsg
		wantQuit bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"r", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}, false},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := update(t, New(Config{}), tt.msg)
			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
			if tt.wantQuit && m.View() != "" {
				t.Error("View() not empty after quit")
			}
		})
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	m, cmd := update(t, New(Config{}), QuitMsg{})
	if !m.quitting || cmd == nil {
		t.Errorf("quitting=%v cmd=%v after QuitMsg", m.quitting, cmd)
	}
}

// =============================================================================
// Tests: Update - Data Messages
// =============================================================================

func TestModel_Update_OutcomeKeepsHistory(t *testing.T) {
	tracker := stats.NewTracker(time.Now())
	m, _ := newTestModel(t, tracker)

	for i := 1; i <= 5; i++ {
		o := outcome.New(uint64(i), time.Now())
		o.SetExitCode(0)
		tracker.Record(o)
		m, _ = update(t, m, OutcomeMsg{Outcome: o})
	}

	recent := m.Recent()
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}
	if recent[0].Cycle != 3 || recent[2].Cycle != 5 {
		t.Errorf("Recent cycles = %d..%d, want 3..5", recent[0].Cycle, recent[2].Cycle)
	}
	if m.Cycles() != 5 {
		t.Errorf("Cycles() = %d, want 5", m.Cycles())
	}
}

func TestModel_Update_TickRefreshesStats(t *testing.T) {
	tracker := stats.NewTracker(time.Now())
	m, clock := newTestModel(t, tracker)

	tracker.Record(outcome.New(1, time.Now()))
	clock.Advance(time.Second)
	m, cmd := update(t, m, TickMsg(clock.Now()))

	if cmd == nil {
		t.Error("expected tick cmd to be returned")
	}
	if m.Cycles() != 1 {
		t.Errorf("Cycles() = %d, want 1", m.Cycles())
	}
	if !m.lastUpdate.Equal(clock.Now()) {
		t.Errorf("lastUpdate = %v, want %v", m.lastUpdate, clock.Now())
	}
}

func TestModel_Update_TickWithoutSource(t *testing.T) {
	m, _ := update(t, New(Config{}), TickMsg(time.Now()))
	if m.hasStats {
		t.Error("hasStats set without a source")
	}
}

func TestModel_Countdown(t *testing.T) {
	m, clock := newTestModel(t, nil)

	m, _ = update(t, m, PhaseMsg{Phase: "sleeping", Until: clock.Now().Add(8 * time.Second)})
	if got := m.NextIn(); got != 8*time.Second {
		t.Errorf("NextIn() = %v, want 8s", got)
	}
	if got := m.SleepProgress(); got < 0.19 || got > 0.21 {
		t.Errorf("SleepProgress() = %v, want 0.2", got)
	}

	clock.Advance(10 * time.Second)
	if got := m.NextIn(); got != 0 {
		t.Errorf("NextIn() after wake = %v, want 0", got)
	}

	m, _ = update(t, m, PhaseMsg{Phase: "running"})
	if m.NextIn() != 0 || m.SleepProgress() != 0 {
		t.Error("countdown still shown while running")
	}
}

func TestModel_Elapsed(t *testing.T) {
	m, clock := newTestModel(t, nil)
	clock.Advance(90 * time.Second)
	if got := m.Elapsed(); got != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 90s", got)
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestModel_View_BeforeFirstCycle(t *testing.T) {
	m, _ := newTestModel(t, stats.NewTracker(time.Now()))
	out := m.View()

	for _, want := range []string{
		"monitor-runner",
		"shop/checkout",
		"waiting",
		"/usr/local/bin/probe --fast",
		"Interval:",
		"watchdog",
		"starting",
		"q: quit",
		"http://127.0.0.1:17091/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"Outcomes", "Recent Runs"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("View() shows %q before any cycle", unwanted)
		}
	}
}

func TestModel_View_WithOutcomes(t *testing.T) {
	tracker := stats.NewTracker(time.Now())
	m, clock := newTestModel(t, tracker)

	ok := outcome.New(1, clock.Now())
	ok.SetExitCode(0)
	ok.Duration = 120 * time.Millisecond
	killed := outcome.New(2, clock.Now().Add(10*time.Second))
	killed.Reason = outcome.KilledByTimeout
	killed.Duration = 5 * time.Second

	for _, o := range []outcome.Outcome{ok, killed} {
		tracker.Record(o)
		m, _ = update(t, m, OutcomeMsg{Outcome: o})
	}
	m, _ = update(t, m, PhaseMsg{Phase: "sleeping", Until: clock.Now().Add(4 * time.Second)})

	out := m.View()
	for _, want := range []string{
		"Cycles: 2",
		"killed_by_timeout",
		"Outcomes",
		"Success Ratio:",
		"50.0%",
		"Probe Duration",
		"Recent Runs",
		"exited (0)",
		"Next cycle in 4.0s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q:\n%s", want, out)
		}
	}
}

func TestModel_View_Running(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m, _ = update(t, m, PhaseMsg{Phase: "running"})
	if out := m.View(); !strings.Contains(out, "Running cycle 1...") {
		t.Errorf("View() missing running status:\n%s", out)
	}
}

// =============================================================================
// Tests: Formatting Helpers
// =============================================================================

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"duration", formatDuration(3723 * time.Second), "01:02:03"},
		{"number", formatNumber(1500), "1.5K"},
		{"ms", formatMs(1500 * time.Millisecond), "1500 ms"},
		{"µs", formatMs(300 * time.Microsecond), "300 µs"},
		{"percent", formatPercent(0.256), "25.6%"},
		{"countdown", formatCountdown(2500 * time.Millisecond), "2.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
