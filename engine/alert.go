package engine

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/ftahirops/xguard/gateway"
	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// Gateway is the remote side of the agent. Every call is bounded by its
// own timeout and returns nil or a *gateway.TransportError.
type Gateway interface {
	Heartbeat(ctx context.Context, fps float64) error
	Stream(ctx context.Context, image string, isAdmin bool, personCount int) error
	Alert(ctx context.Context, e model.AlertEvent) error
	Lock(ctx context.Context, evidence string) error
}

// Publisher fans admitted alerts out to a message bus. Optional.
type Publisher interface {
	Publish(ctx context.Context, e model.AlertEvent) error
}

// Request is an alert attempt before it meets the cooldown gate.
type Request struct {
	Type        model.AlertType
	Description string
	Severity    model.Severity
}

// Outcome is the terminal state of one dispatch attempt.
type Outcome int

const (
	OutcomeGated      Outcome = iota // dropped by the cooldown gate, no side effects
	OutcomeSent                      // admitted, logged and accepted by the gateway
	OutcomeSendFailed                // admitted and logged, gateway call failed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGated:
		return "gated"
	case OutcomeSent:
		return "sent"
	case OutcomeSendFailed:
		return "send_failed"
	}
	return "unknown"
}

// Dispatcher owns the cooldown state and drives one alert attempt through
// gate, evidence, audit, lock and send. It is not safe for concurrent use;
// the frame loop is its only caller.
type Dispatcher struct {
	Gate      *CooldownGate
	Evidence  *EvidenceCapture // nil disables evidence
	Audit     *AuditLog        // nil disables the audit trail
	Gateway   Gateway
	Locker    SessionLocker
	Publisher Publisher

	LockTimeout time.Duration // bound on the local session lock
	StartedAt   time.Time
}

// Dispatch runs req through the alert state machine at now. frame may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, frame image.Image, now time.Time) Outcome {
	if !d.Gate.TryAcquire(now) {
		alertsGated.WithLabelValues(req.Type.String()).Inc()
		return OutcomeGated
	}
	alertsDispatched.WithLabelValues(req.Type.String(), req.Severity.String()).Inc()

	ev := model.AlertEvent{
		ID:                   uuid.NewString(),
		Type:                 req.Type,
		Description:          req.Description,
		Severity:             req.Severity,
		EngineRuntimeSeconds: now.Sub(d.StartedAt).Seconds(),
		Timestamp:            now,
	}
	if ev.EngineRuntimeSeconds < 0 {
		ev.EngineRuntimeSeconds = 0
	}

	if req.Severity.RequiresEvidence() && frame != nil && d.Evidence != nil {
		ev.EvidencePath, ev.EvidenceEncoded = d.Evidence.Capture(req.Type, frame, now)
	}

	if d.Audit != nil {
		if err := d.Audit.Append(ev); err != nil {
			auditFailures.Inc()
			logging.Warn().Err(err).Str("path", d.Audit.Path()).Msg("LOG_WRITE_FAILURE")
		}
	}

	if ev.RequiresLock() {
		d.lock(ctx, ev)
	}

	outcome := OutcomeSendFailed
	if gateway.Discard(d.Gateway.Alert(ctx, ev)) {
		outcome = OutcomeSent
		logging.Info().
			Str("id", ev.ID).
			Str("type", ev.Type.String()).
			Str("severity", ev.Severity.String()).
			Msg("SIGNAL_DISPATCHED")
	} else {
		alertsSendFailed.WithLabelValues(req.Type.String()).Inc()
	}

	if d.Publisher != nil {
		gateway.Discard(d.Publisher.Publish(ctx, ev))
	}
	return outcome
}

func (d *Dispatcher) lock(ctx context.Context, ev model.AlertEvent) {
	logging.Error().
		Str("id", ev.ID).
		Str("type", ev.Type.String()).
		Msg("FORCED_PREVENTION: locking workstation")

	gateway.Discard(d.Gateway.Lock(ctx, ev.EvidenceEncoded))

	if d.Locker == nil {
		return
	}
	timeout := d.LockTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.Locker.Lock(lctx); err != nil {
		sessionLocks.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Msg("session lock failed")
		return
	}
	sessionLocks.WithLabelValues("ok").Inc()
}
