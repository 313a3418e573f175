package model

import "time"

// Status is the read-only view of the agent served to dashboards.
type Status struct {
	Active        bool      `json:"active"`
	AdminVerified bool      `json:"admin_verified"`
	PersonCount   int       `json:"person_count"`
	FPS           float64   `json:"fps"`
	Frames        uint64    `json:"frames"`
	Alerts        uint64    `json:"alerts"`
	Gated         uint64    `json:"gated"`
	LastAlertAt   time.Time `json:"last_alert_at,omitempty"`
	LastAlertType string    `json:"last_alert_type,omitempty"`
	CooldownLeft  float64   `json:"cooldown_left_sec"`
	GazeHold      float64   `json:"gaze_hold_sec"`     // how long focus has been lost, 0 when focused
	DistressHold  float64   `json:"distress_hold_sec"` // how long the SOS gesture has been held
	Gateway       string    `json:"gateway"`           // circuit breaker state
	StartedAt     time.Time `json:"started_at"`
}
