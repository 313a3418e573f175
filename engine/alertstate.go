package engine

import "time"

// ConditionTimer turns a per-frame boolean signal into a sustained condition.
// The signal must hold for strictly longer than Dwell; any false frame
// clears the timer with no partial credit.
type ConditionTimer struct {
	Name  string
	Dwell time.Duration

	startedAt time.Time // zero when the signal is not running
}

// NewConditionTimer creates a timer with the given dwell time.
func NewConditionTimer(name string, dwell time.Duration) *ConditionTimer {
	return &ConditionTimer{Name: name, Dwell: dwell}
}

// Observe feeds one frame's signal and reports whether the condition is sustained.
// The first true frame of a run never fires.
func (t *ConditionTimer) Observe(active bool, now time.Time) bool {
	if !active {
		t.startedAt = time.Time{}
		return false
	}
	if t.startedAt.IsZero() {
		t.startedAt = now
		return false
	}
	return now.Sub(t.startedAt) > t.Dwell
}

// Running reports whether a run is in progress and how long it has held.
func (t *ConditionTimer) Running(now time.Time) (time.Duration, bool) {
	if t.startedAt.IsZero() {
		return 0, false
	}
	return now.Sub(t.startedAt), true
}
