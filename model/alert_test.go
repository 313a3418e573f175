package model

import "testing"

func TestSeverityOrder(t *testing.T) {
	for i := 1; i < len(AllSeverities); i++ {
		if AllSeverities[i-1] >= AllSeverities[i] {
			t.Fatalf("%s must rank below %s", AllSeverities[i-1], AllSeverities[i])
		}
	}
	if SeverityMedium.RequiresEvidence() {
		t.Fatal("MEDIUM must not require evidence")
	}
	for _, s := range []Severity{SeverityHigh, SeverityCritical, SeverityUrgent} {
		if !s.RequiresEvidence() {
			t.Fatalf("%s must require evidence", s)
		}
	}
}

func TestParseAlertType(t *testing.T) {
	for _, at := range AllAlertTypes {
		got, err := ParseAlertType(at.String())
		if err != nil || got != at {
			t.Fatalf("ParseAlertType(%q) = %v, %v", at.String(), got, err)
		}
	}
	if _, err := ParseAlertType("PHONE"); err == nil {
		t.Fatal("expected error for unknown alert type")
	}
	if _, err := ParseSeverity("LOW"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestRequiresLock(t *testing.T) {
	cases := []struct {
		name string
		e    AlertEvent
		want bool
	}{
		{"exfiltration", AlertEvent{Type: AlertExfiltrationRisk, Severity: SeverityCritical}, true},
		{"critical_other_type", AlertEvent{Type: AlertHardwareBreach, Severity: SeverityCritical}, true},
		{"hardware_high", AlertEvent{Type: AlertHardwareBreach, Severity: SeverityHigh}, false},
		{"distress_urgent", AlertEvent{Type: AlertPersonnelDistress, Severity: SeverityUrgent}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.e.RequiresLock(); got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}
