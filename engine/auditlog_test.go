package engine

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ftahirops/xguard/model"
)

func TestAuditLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	log := NewAuditLog(path)

	events := []model.AlertEvent{
		{
			Type:                 model.AlertVisualBreach,
			Description:          "PROXIMITY_ALERT: 3 persons",
			Severity:             model.SeverityHigh,
			EngineRuntimeSeconds: 12.3456,
			Timestamp:            time.Date(2026, 3, 14, 9, 5, 7, 0, time.Local),
			EvidencePath:         "breach_snapshots/breach_VISUAL_BREACH_20260314_090507.jpg",
		},
		{
			Type:                 model.AlertAttentionLapse,
			Description:          `focus lost, "quoted", and comma`,
			Severity:             model.SeverityMedium,
			EngineRuntimeSeconds: 3.1,
			Timestamp:            time.Date(2026, 3, 14, 9, 6, 0, 0, time.Local),
		},
	}
	for _, e := range events {
		if err := log.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	if len(recs) != len(events) {
		t.Fatalf("got %d records, want %d", len(recs), len(events))
	}
	for i, e := range events {
		r := recs[i]
		if !r.Timestamp.Equal(e.Timestamp) {
			t.Errorf("row %d timestamp %v, want %v", i, r.Timestamp, e.Timestamp)
		}
		if r.Type != e.Type || r.Severity != e.Severity {
			t.Errorf("row %d type/severity %v/%v", i, r.Type, r.Severity)
		}
		if r.Description != e.Description {
			t.Errorf("row %d description %q, want %q", i, r.Description, e.Description)
		}
		if r.EvidencePath != e.EvidencePath {
			t.Errorf("row %d evidence %q, want %q", i, r.EvidencePath, e.EvidencePath)
		}
		if math.Abs(r.RuntimeSec-e.EngineRuntimeSeconds) > 0.005 {
			t.Errorf("row %d runtime %v, want ~%v", i, r.RuntimeSec, e.EngineRuntimeSeconds)
		}
	}
}

func TestAuditLogHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	log := NewAuditLog(path)
	e := model.AlertEvent{
		Type:      model.AlertHardwareBreach,
		Severity:  model.SeverityHigh,
		Timestamp: time.Date(2026, 3, 14, 9, 5, 7, 0, time.Local),
	}
	for i := 0; i < 3; i++ {
		if err := log.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("want header + 3 rows, got %d lines:\n%s", len(lines), data)
	}
	if lines[0] != "Timestamp,Alert_Type,Item_Description,Severity,Runtime_Sec,Evidence_Path" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "2026-03-14 09:05:07,HARDWARE_BREACH,,HIGH,0.00,N/A" {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestAuditLogMissingFile(t *testing.T) {
	recs, err := ReadAuditLog(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil || recs != nil {
		t.Fatalf("missing file: %v %v", recs, err)
	}
}

func TestTailAuditLogNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	log := NewAuditLog(path)
	for i := 0; i < 5; i++ {
		_ = log.Append(model.AlertEvent{
			Type:                 model.AlertVisualBreach,
			Severity:             model.SeverityHigh,
			EngineRuntimeSeconds: float64(i),
			Timestamp:            t0.Add(time.Duration(i) * time.Minute),
		})
	}
	recs, err := TailAuditLog(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].RuntimeSec != 4 || recs[1].RuntimeSec != 3 {
		t.Fatalf("tail = %+v", recs)
	}
}
