package engine

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ftahirops/xguard/model"
)

var (
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xguard_frames_processed_total",
		Help: "Frames run through the alert engine",
	})

	framesPerSecond = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xguard_fps",
		Help: "Instantaneous frame rate of the detection loop",
	})

	personsInView = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xguard_persons_in_view",
		Help: "Persons detected in the latest frame",
	})

	alertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_alerts_dispatched_total",
		Help: "Alerts admitted by the cooldown gate",
	}, []string{"type", "severity"})

	alertsGated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_alerts_gated_total",
		Help: "Alert attempts dropped by the cooldown gate",
	}, []string{"type"})

	alertsSendFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_alerts_send_failed_total",
		Help: "Admitted alerts the gateway did not accept",
	}, []string{"type"})

	auditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xguard_audit_write_failures_total",
		Help: "Audit log appends that failed",
	})

	evidenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_evidence_failures_total",
		Help: "Evidence captures that failed, by output",
	}, []string{"output"}) // file, encode

	sessionLocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xguard_session_locks_total",
		Help: "Local workstation lock attempts",
	}, []string{"result"})
)

// StatusStore holds the latest engine status for readers outside the frame
// loop. The admin flag is a single atomic word; the rest is copied under a lock.
type StatusStore struct {
	admin atomic.Bool

	mu     sync.RWMutex
	status model.Status
}

// NewStatusStore creates an empty store.
func NewStatusStore() *StatusStore {
	return &StatusStore{}
}

func (s *StatusStore) SetAdminVerified(v bool) { s.admin.Store(v) }

func (s *StatusStore) AdminVerified() bool { return s.admin.Load() }

// Update applies fn to the stored status. Only the frame loop writes.
func (s *StatusStore) Update(fn func(*model.Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

// Snapshot returns a copy of the latest status.
func (s *StatusStore) Snapshot() model.Status {
	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()
	st.AdminVerified = s.admin.Load()
	return st
}
