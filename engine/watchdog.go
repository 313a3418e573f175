package engine

import "time"

// CooldownGate is the global alert rate limiter. Any admitted alert closes
// the gate for every alert type until Threshold has elapsed.
type CooldownGate struct {
	Threshold time.Duration

	lastAlertAt time.Time
}

// NewCooldownGate creates an open gate.
func NewCooldownGate(threshold time.Duration) *CooldownGate {
	return &CooldownGate{Threshold: threshold}
}

// TryAcquire admits an alert at now if the gate is open and records the
// admission. A rejected attempt leaves the window untouched.
func (g *CooldownGate) TryAcquire(now time.Time) bool {
	if !g.lastAlertAt.IsZero() && now.Sub(g.lastAlertAt) <= g.Threshold {
		return false
	}
	g.lastAlertAt = now
	return true
}

// Remaining returns how long the gate stays closed after now (0 when open).
func (g *CooldownGate) Remaining(now time.Time) time.Duration {
	if g.lastAlertAt.IsZero() {
		return 0
	}
	left := g.Threshold - now.Sub(g.lastAlertAt)
	if left < 0 {
		return 0
	}
	return left
}

// LastAlertAt returns the last admission time, zero if none.
func (g *CooldownGate) LastAlertAt() time.Time {
	return g.lastAlertAt
}
