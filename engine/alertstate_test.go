package engine

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestConditionTimerObserve(t *testing.T) {
	type obs struct {
		active bool
		sec    float64
		want   bool
	}
	tests := []struct {
		name  string
		dwell time.Duration
		seq   []obs
	}{
		{
			name:  "first true frame never fires",
			dwell: 0,
			seq:   []obs{{true, 0, false}, {true, 0.1, true}},
		},
		{
			name:  "strictly greater than dwell",
			dwell: 3 * time.Second,
			seq:   []obs{{true, 0, false}, {true, 3, false}, {true, 3.01, true}, {true, 4, true}},
		},
		{
			name:  "false resets elapsed time",
			dwell: 2 * time.Second,
			seq: []obs{
				{true, 0, false}, {true, 1.9, false}, {false, 2.0, false},
				{true, 2.1, false}, {true, 4.0, false}, {true, 4.2, true},
			},
		},
		{
			name:  "flicker never sustains",
			dwell: time.Second,
			seq: []obs{
				{true, 0, false}, {false, 0.5, false}, {true, 1, false},
				{false, 1.5, false}, {true, 2, false}, {false, 2.5, false},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := NewConditionTimer("test", tt.dwell)
			for i, o := range tt.seq {
				if got := ct.Observe(o.active, at(o.sec)); got != o.want {
					t.Fatalf("step %d (active=%v t=%.2f): got %v, want %v", i, o.active, o.sec, got, o.want)
				}
			}
		})
	}
}

func TestConditionTimerRunning(t *testing.T) {
	ct := NewConditionTimer("gaze", 3*time.Second)
	if _, ok := ct.Running(at(0)); ok {
		t.Fatal("fresh timer should not be running")
	}
	ct.Observe(true, at(1))
	d, ok := ct.Running(at(2.5))
	if !ok || d != 1500*time.Millisecond {
		t.Fatalf("Running = %v, %v; want 1.5s, true", d, ok)
	}
	ct.Observe(false, at(3))
	if _, ok := ct.Running(at(3)); ok {
		t.Fatal("a false frame should stop the run")
	}
}

func TestCooldownGate(t *testing.T) {
	g := NewCooldownGate(5 * time.Second)

	if !g.TryAcquire(at(0)) {
		t.Fatal("first acquire must succeed")
	}
	if g.TryAcquire(at(5)) {
		t.Fatal("acquire at exactly the threshold must be rejected")
	}
	// rejected attempts must not slide the window
	if g.TryAcquire(at(4.9)) {
		t.Fatal("acquire inside window must be rejected")
	}
	if !g.LastAlertAt().Equal(at(0)) {
		t.Fatalf("rejected attempt moved lastAlertAt to %v", g.LastAlertAt())
	}
	if !g.TryAcquire(at(5.5)) {
		t.Fatal("acquire after threshold must succeed")
	}
	if got := g.Remaining(at(6.5)); got != 4*time.Second {
		t.Fatalf("Remaining = %v, want 4s", got)
	}
	if got := g.Remaining(at(20)); got != 0 {
		t.Fatalf("Remaining after window = %v, want 0", got)
	}
}

func TestCooldownGateNeverAdmitsTwoWithinThreshold(t *testing.T) {
	g := NewCooldownGate(5 * time.Second)
	var admitted []time.Time
	for i := 0; i < 200; i++ {
		now := at(float64(i) * 0.25)
		if g.TryAcquire(now) {
			admitted = append(admitted, now)
		}
	}
	for i := 1; i < len(admitted); i++ {
		if gap := admitted[i].Sub(admitted[i-1]); gap <= 5*time.Second {
			t.Fatalf("admissions %d and %d only %v apart", i-1, i, gap)
		}
	}
	if len(admitted) < 2 {
		t.Fatalf("expected several admissions over 50s, got %d", len(admitted))
	}
}
