package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/ftahirops/xguard/gateway"
	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// Frame is one captured image plus what the detection collaborator saw in it.
type Frame struct {
	Image     image.Image // nil when the source has no pixels
	Summary   model.DetectionSummary
	Boxes     []model.Box // raw detector boxes, used to blur persons before streaming
	Timestamp time.Time   // zero means "now"
}

// DetectionSource yields frames until it returns io.EOF.
type DetectionSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Renderer receives every processed frame with the resulting status.
type Renderer interface {
	Render(f Frame, st model.Status)
}

// Options configures an Engine.
type Options struct {
	GazeThreshold time.Duration
	SOSHoldTime   time.Duration
	Thresholds    Thresholds
	StreamEnabled bool
	StreamQuality int
	BlurSigma     float64          // person-box blur on streamed frames, 0 disables
	Clock         func() time.Time // defaults to time.Now
}

// Engine is the frame loop. It owns the condition timers and, through the
// dispatcher, the cooldown gate. All of its state lives on the Run goroutine.
type Engine struct {
	source     DetectionSource
	dispatcher *Dispatcher
	status     *StatusStore
	renderer   Renderer

	gaze     *ConditionTimer
	distress *ConditionTimer
	opts     Options

	lastFrameAt time.Time
	fps         float64
	frames      uint64
	alerts      uint64
	gated       uint64
	lastAlertAt time.Time
	lastAlert   model.AlertType
}

// New creates an engine reading from src and dispatching through d.
func New(opts Options, src DetectionSource, d *Dispatcher, status *StatusStore) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.StreamQuality <= 0 {
		opts.StreamQuality = 50
	}
	if status == nil {
		status = NewStatusStore()
	}
	return &Engine{
		source:     src,
		dispatcher: d,
		status:     status,
		gaze:       NewConditionTimer("gaze", opts.GazeThreshold),
		distress:   NewConditionTimer("distress", opts.SOSHoldTime),
		opts:       opts,
	}
}

// SetRenderer installs a sink called after every frame.
func (e *Engine) SetRenderer(r Renderer) { e.renderer = r }

// Status returns the store the engine publishes into.
func (e *Engine) Status() *StatusStore { return e.status }

// Run processes frames until the source is exhausted (nil) or fails.
func (e *Engine) Run(ctx context.Context) error {
	e.status.Update(func(s *model.Status) {
		s.Active = true
		s.StartedAt = e.dispatcher.StartedAt
	})
	defer e.status.Update(func(s *model.Status) { s.Active = false })

	logging.Info().Msg("SYSTEM_STATUS: monitoring active")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := e.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			logging.Info().Uint64("frames", e.frames).Msg("detection source exhausted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("detection source: %w", err)
		}
		now := f.Timestamp
		if now.IsZero() {
			now = e.opts.Clock()
		}
		e.Process(ctx, f, now)
	}
}

// Process runs one frame through the alert pipeline at now. Every trigger
// sees the same summary.
func (e *Engine) Process(ctx context.Context, f Frame, now time.Time) {
	s := f.Summary
	e.status.SetAdminVerified(s.AdminVerified)

	if !e.lastFrameAt.IsZero() {
		if dt := now.Sub(e.lastFrameAt).Seconds(); dt > 0 {
			e.fps = 1 / dt
		}
	}
	e.lastFrameAt = now
	e.frames++
	framesProcessed.Inc()
	framesPerSecond.Set(e.fps)
	personsInView.Set(float64(s.ActivePersonCount))

	th := e.opts.Thresholds
	for _, d := range s.DeviceDetections {
		if th.Qualifies(d) {
			e.dispatch(ctx, th.ClassifyDevice(d), f.Image, now)
		}
	}

	e.telemetry(ctx, f, s)

	if e.gaze.Observe(s.PersonPresent && !s.GazeOnTarget, now) {
		e.dispatch(ctx, attentionLapse, f.Image, now)
	}
	if e.distress.Observe(s.DistressSignalActive, now) {
		e.dispatch(ctx, personnelDistress, f.Image, now)
	}
	if s.ActivePersonCount > 1 {
		e.dispatch(ctx, visualBreach(s.ActivePersonCount), f.Image, now)
	}

	e.publish(f, now)
}

func (e *Engine) telemetry(ctx context.Context, f Frame, s model.DetectionSummary) {
	gw := e.dispatcher.Gateway
	gateway.Discard(gw.Heartbeat(ctx, round2(e.fps)))

	if !e.opts.StreamEnabled || f.Image == nil {
		return
	}
	// evidence keeps the raw frame; only the stream is blurred
	blurred := BlurPersons(f.Image, f.Boxes, e.opts.Thresholds, e.opts.BlurSigma)
	img, err := EncodeFrame(blurred, e.opts.StreamQuality)
	if err != nil {
		logging.Debug().Err(err).Msg("stream encode failed")
		return
	}
	gateway.Discard(gw.Stream(ctx, img, s.AdminVerified, s.ActivePersonCount))
}

func (e *Engine) dispatch(ctx context.Context, req Request, frame image.Image, now time.Time) {
	if e.dispatcher.Dispatch(ctx, req, frame, now) == OutcomeGated {
		e.gated++
		return
	}
	e.alerts++
	e.lastAlertAt = now
	e.lastAlert = req.Type
}

func (e *Engine) publish(f Frame, now time.Time) {
	s := f.Summary
	var gwState string
	if st, ok := e.dispatcher.Gateway.(interface{ State() string }); ok {
		gwState = st.State()
	}
	gazeHold, _ := e.gaze.Running(now)
	distressHold, _ := e.distress.Running(now)
	e.status.Update(func(st *model.Status) {
		st.Active = true
		st.PersonCount = s.ActivePersonCount
		st.FPS = round2(e.fps)
		st.Frames = e.frames
		st.Alerts = e.alerts
		st.Gated = e.gated
		st.CooldownLeft = round2(e.dispatcher.Gate.Remaining(now).Seconds())
		st.GazeHold = round2(gazeHold.Seconds())
		st.DistressHold = round2(distressHold.Seconds())
		st.Gateway = gwState
		if !e.lastAlertAt.IsZero() {
			st.LastAlertAt = e.lastAlertAt
			st.LastAlertType = e.lastAlert.String()
		}
	})
	if e.renderer != nil {
		f.Timestamp = now
		e.renderer.Render(f, e.status.Snapshot())
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
