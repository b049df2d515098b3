package outcome

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestFailed(t *testing.T) {
	testCases := []struct {
		name string
		o    Outcome
		want bool
	}{
		{"exit zero", Outcome{Reason: Exited, ExitCode: intPtr(0)}, false},
		{"exit non-zero", Outcome{Reason: Exited, ExitCode: intPtr(3)}, true},
		{"exited without code", Outcome{Reason: Exited}, true},
		{"timeout", Outcome{Reason: KilledByTimeout}, true},
		{"wait error", Outcome{Reason: WaitError}, true},
		{"launch error", Outcome{Reason: LaunchError}, true},
		{"cancelled", Outcome{Reason: Cancelled}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.o.Failed(); got != tc.want {
				t.Errorf("Failed() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestArchivable(t *testing.T) {
	testCases := []struct {
		name string
		o    Outcome
		want bool
	}{
		{"exit zero", Outcome{Reason: Exited, ExitCode: intPtr(0)}, false},
		{"exit non-zero", Outcome{Reason: Exited, ExitCode: intPtr(3)}, true},
		{"timeout", Outcome{Reason: KilledByTimeout}, true},
		{"cancelled", Outcome{Reason: Cancelled}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.o.Archivable(); got != tc.want {
				t.Errorf("Archivable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRetCode(t *testing.T) {
	if got := (Outcome{Reason: KilledByTimeout}).RetCode(); got != NoExitCode {
		t.Errorf("RetCode() = %d, want %d", got, NoExitCode)
	}

	var o Outcome
	o.SetExitCode(2)
	if o.Reason != Exited || o.RetCode() != 2 {
		t.Errorf("after SetExitCode(2): reason=%v code=%d", o.Reason, o.RetCode())
	}
}

func TestNew_UniqueRunIDs(t *testing.T) {
	now := time.Now()
	a, b := New(1, now), New(2, now)
	if a.RunID == b.RunID {
		t.Error("two outcomes share a run id")
	}
	if a.Cycle != 1 || !a.Started.Equal(now) {
		t.Errorf("New(1, now) = cycle %d started %v", a.Cycle, a.Started)
	}
}

func TestReason_String(t *testing.T) {
	want := []string{"exited", "killed_by_timeout", "wait_error", "launch_error", "cancelled"}
	for i, r := range Reasons() {
		if r.String() != want[i] {
			t.Errorf("Reason(%d).String() = %q, want %q", r, r.String(), want[i])
		}
	}
	if Reason(99).String() != "unknown" {
		t.Errorf("Reason(99).String() = %q, want unknown", Reason(99).String())
	}
}

func TestReason_TextRoundTrip(t *testing.T) {
	var r Reason
	if err := r.UnmarshalText([]byte("killed_by_timeout")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if r != KilledByTimeout {
		t.Errorf("got %v, want KilledByTimeout", r)
	}
	if err := r.UnmarshalText([]byte("nope")); err == nil {
		t.Error("UnmarshalText(nope) succeeded")
	}
}

func TestOutcome_JSON(t *testing.T) {
	o := New(3, time.Unix(1700000000, 0).UTC())
	o.AppName = "shop"
	o.Reason = KilledByTimeout

	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"reason":"killed_by_timeout"`, `"exit_code":null`, `"app":"shop"`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
}

func TestSummary(t *testing.T) {
	o := Outcome{Cycle: 4, Duration: 1500 * time.Millisecond}
	o.SetExitCode(1)
	if got := o.Summary(); got != "run 4 took 1500ms: exited (exit 1)" {
		t.Errorf("Summary() = %q", got)
	}

	k := Outcome{Cycle: 5, Duration: 5 * time.Second, Reason: KilledByTimeout, Signal: "killed", KillFailed: true}
	if got := k.Summary(); !strings.Contains(got, "killed_by_timeout") || !strings.Contains(got, "kill_failed") {
		t.Errorf("Summary() = %q", got)
	}

	k.Overrun = true
	if got := k.Summary(); !strings.HasSuffix(got, "kill_failed overrun") {
		t.Errorf("Summary() = %q, want overrun marker", got)
	}
}
