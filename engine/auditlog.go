package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ftahirops/xguard/model"
)

// AuditTimeFormat is the local wall-clock layout of the Timestamp column.
const AuditTimeFormat = "2006-01-02 15:04:05"

// evidenceAbsent marks an alert without a captured frame.
const evidenceAbsent = "N/A"

// AuditHeader is written once when the log file is created.
var AuditHeader = []string{"Timestamp", "Alert_Type", "Item_Description", "Severity", "Runtime_Sec", "Evidence_Path"}

// AuditRecord is one parsed row of the audit log.
type AuditRecord struct {
	Timestamp    time.Time
	Type         model.AlertType
	Description  string
	Severity     model.Severity
	RuntimeSec   float64
	EvidencePath string // empty when the row says N/A
}

// AuditLog appends admitted alerts to a CSV file. It never rewrites or
// truncates existing rows.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

// NewAuditLog creates a log for the given path. The file is created on first Append.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Path returns the log file path.
func (l *AuditLog) Path() string { return l.path }

// Append writes one row for e, preceded by the header if the file is new or empty.
func (l *AuditLog) Append(e model.AlertEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(AuditHeader); err != nil {
			return err
		}
	}
	if err := w.Write(auditRow(e)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func auditRow(e model.AlertEvent) []string {
	evidence := e.EvidencePath
	if evidence == "" {
		evidence = evidenceAbsent
	}
	return []string{
		e.Timestamp.Local().Format(AuditTimeFormat),
		e.Type.String(),
		e.Description,
		e.Severity.String(),
		strconv.FormatFloat(e.EngineRuntimeSeconds, 'f', 2, 64),
		evidence,
	}
}

// ReadAuditLog parses every row of the log at path. A missing file yields no records.
func ReadAuditLog(path string) ([]AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(AuditHeader)

	var out []AuditRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, fmt.Errorf("audit log line %d: %w", line, err)
		}
		if line == 1 && row[0] == AuditHeader[0] {
			continue
		}
		rec, err := parseAuditRow(row)
		if err != nil {
			return out, fmt.Errorf("audit log line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// TailAuditLog returns the last n records, newest first.
func TailAuditLog(path string, n int) ([]AuditRecord, error) {
	recs, err := ReadAuditLog(path)
	if err != nil {
		return nil, err
	}
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	out := make([]AuditRecord, len(recs))
	for i, r := range recs {
		out[len(recs)-1-i] = r
	}
	return out, nil
}

func parseAuditRow(row []string) (AuditRecord, error) {
	ts, err := time.ParseInLocation(AuditTimeFormat, row[0], time.Local)
	if err != nil {
		return AuditRecord{}, err
	}
	typ, err := model.ParseAlertType(row[1])
	if err != nil {
		return AuditRecord{}, err
	}
	sev, err := model.ParseSeverity(row[3])
	if err != nil {
		return AuditRecord{}, err
	}
	runtime, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("runtime: %w", err)
	}
	evidence := row[5]
	if evidence == evidenceAbsent {
		evidence = ""
	}
	return AuditRecord{
		Timestamp:    ts,
		Type:         typ,
		Description:  row[2],
		Severity:     sev,
		RuntimeSec:   runtime,
		EvidencePath: evidence,
	}, nil
}
