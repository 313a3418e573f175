package model

import (
	"fmt"
	"strings"
	"time"
)

// AlertType is the fixed catalog of alerts the engine can raise.
type AlertType int

const (
	AlertAttentionLapse AlertType = iota + 1
	AlertPersonnelDistress
	AlertVisualBreach
	AlertHardwareBreach
	AlertExfiltrationRisk
)

// AllAlertTypes lists the catalog in declaration order.
var AllAlertTypes = []AlertType{
	AlertAttentionLapse,
	AlertPersonnelDistress,
	AlertVisualBreach,
	AlertHardwareBreach,
	AlertExfiltrationRisk,
}

func (t AlertType) String() string {
	switch t {
	case AlertAttentionLapse:
		return "ATTENTION_LAPSE"
	case AlertPersonnelDistress:
		return "PERSONNEL_DISTRESS"
	case AlertVisualBreach:
		return "VISUAL_BREACH"
	case AlertHardwareBreach:
		return "HARDWARE_BREACH"
	case AlertExfiltrationRisk:
		return "EXFILTRATION_RISK"
	}
	return "UNKNOWN"
}

// ParseAlertType is the inverse of AlertType.String.
func ParseAlertType(s string) (AlertType, error) {
	for _, t := range AllAlertTypes {
		if t.String() == strings.ToUpper(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown alert type %q", s)
}

func (t AlertType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AlertType) UnmarshalText(b []byte) error {
	v, err := ParseAlertType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Severity is totally ordered: Medium < High < Critical < Urgent.
type Severity int

const (
	SeverityMedium Severity = iota + 1
	SeverityHigh
	SeverityCritical
	SeverityUrgent
)

// AllSeverities lists severities in ascending order.
var AllSeverities = []Severity{SeverityMedium, SeverityHigh, SeverityCritical, SeverityUrgent}

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityUrgent:
		return "URGENT"
	}
	return "UNKNOWN"
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	for _, v := range AllSeverities {
		if v.String() == strings.ToUpper(strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// RequiresEvidence reports whether alerts of this severity carry a captured frame.
func (s Severity) RequiresEvidence() bool {
	return s >= SeverityHigh
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AlertEvent is one admitted alert. It is built once by the dispatcher,
// handed to the audit log and the gateway, then dropped.
type AlertEvent struct {
	ID                   string    `json:"id"`
	Type                 AlertType `json:"type"`
	Description          string    `json:"description"`
	Severity             Severity  `json:"severity"`
	EngineRuntimeSeconds float64   `json:"engine_runtime"`
	Timestamp            time.Time `json:"timestamp"`
	EvidencePath         string    `json:"evidence_path,omitempty"`    // empty when absent
	EvidenceEncoded      string    `json:"evidence_encoded,omitempty"` // base64 JPEG, empty when absent
}

// RequiresLock reports whether the alert forces a workstation lock.
func (e AlertEvent) RequiresLock() bool {
	return e.Type == AlertExfiltrationRisk || e.Severity == SeverityCritical
}
