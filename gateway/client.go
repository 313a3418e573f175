// Package gateway is the best-effort HTTP client for the remote dashboard
// gateway, plus the optional NATS alert publisher.
//
// Every call has its own short timeout, is never retried and reports
// failure only as a *TransportError. Callers hand that error to Discard,
// which is the single place transport failures are logged and counted.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// Call names, used in errors, logs and metrics.
const (
	CallHeartbeat = "heartbeat"
	CallStream    = "stream"
	CallAlert     = "alert"
	CallLock      = "lock"
	CallPublish   = "publish"
)

const (
	traceSignature = "QS_WATERMARK_SYNCED"
	evidenceAbsent = "N/A"
)

// TransportError is the only error a gateway call returns.
type TransportError struct {
	Call string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Call, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	BaseURL          string
	HeartbeatTimeout time.Duration
	StreamTimeout    time.Duration
	AlertTimeout     time.Duration
	LockTimeout      time.Duration

	BreakerEnabled      bool
	ConsecutiveFailures uint32        // failures that open a breaker
	OpenTimeout         time.Duration // time open before a half-open probe
	HalfOpenRequests    uint32
}

// DefaultOptions returns the stock timeouts against a local gateway.
func DefaultOptions() Options {
	return Options{
		BaseURL:             "http://localhost:5000/api/v1",
		HeartbeatTimeout:    50 * time.Millisecond,
		StreamTimeout:       50 * time.Millisecond,
		AlertTimeout:        800 * time.Millisecond,
		LockTimeout:         500 * time.Millisecond,
		BreakerEnabled:      true,
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Client posts JSON to the gateway. Each call type has its own circuit
// breaker so a slow telemetry path cannot starve alerts.
type Client struct {
	base     string
	http     *http.Client
	timeouts map[string]time.Duration
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewClient creates a client. The http.Client carries no global timeout;
// every request is bounded by its call's context deadline.
func NewClient(opts Options) *Client {
	c := &Client{
		base: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		timeouts: map[string]time.Duration{
			CallHeartbeat: opts.HeartbeatTimeout,
			CallStream:    opts.StreamTimeout,
			CallAlert:     opts.AlertTimeout,
			CallLock:      opts.LockTimeout,
		},
	}
	if opts.BreakerEnabled {
		c.breakers = make(map[string]*gobreaker.CircuitBreaker[struct{}])
		for call := range c.timeouts {
			c.breakers[call] = newBreaker(call, opts)
		}
	}
	return c
}

func newBreaker(call string, opts Options) *gobreaker.CircuitBreaker[struct{}] {
	threshold := opts.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "gateway-" + call,
		MaxRequests: opts.HalfOpenRequests,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(call).Set(float64(to))
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("gateway circuit breaker state change")
		},
	})
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// State reports the alert breaker state, or "direct" without breakers.
func (c *Client) State() string {
	cb, ok := c.breakers[CallAlert]
	if !ok {
		return "direct"
	}
	return stateToString(cb.State())
}

type heartbeatBody struct {
	Engine string  `json:"engine"`
	FPS    float64 `json:"fps"`
}

type streamBody struct {
	Image       string `json:"image"`
	IsAdmin     bool   `json:"is_admin"`
	PersonCount int    `json:"person_count"`
}

type alertBody struct {
	Type           string  `json:"type"`
	Item           string  `json:"item"`
	Severity       string  `json:"severity"`
	EngineRuntime  float64 `json:"engine_runtime"`
	TraceSignature string  `json:"trace_signature"`
	EvidenceFrame  string  `json:"evidence_frame"`
}

type lockBody struct {
	Status   string `json:"status"`
	Evidence string `json:"evidence"`
}

// Heartbeat reports the engine alive with its current frame rate.
func (c *Client) Heartbeat(ctx context.Context, fps float64) error {
	return c.post(ctx, CallHeartbeat, "/heartbeat", heartbeatBody{Engine: "ACTIVE", FPS: round2(fps)}, nil)
}

// Stream pushes one base64 JPEG frame with the admin flag and person count.
func (c *Client) Stream(ctx context.Context, image string, isAdmin bool, personCount int) error {
	return c.post(ctx, CallStream, "/stream", streamBody{Image: image, IsAdmin: isAdmin, PersonCount: personCount}, nil)
}

// Alert delivers an admitted alert.
func (c *Client) Alert(ctx context.Context, e model.AlertEvent) error {
	body := alertBody{
		Type:           e.Type.String(),
		Item:           e.Description,
		Severity:       e.Severity.String(),
		EngineRuntime:  round2(e.EngineRuntimeSeconds),
		TraceSignature: traceSignature,
		EvidenceFrame:  orAbsent(e.EvidenceEncoded),
	}
	var hdr http.Header
	if e.ID != "" {
		hdr = http.Header{"X-Alert-ID": []string{e.ID}}
	}
	return c.post(ctx, CallAlert, "/alert", body, hdr)
}

// Lock asks the gateway to lock the operator console.
func (c *Client) Lock(ctx context.Context, evidence string) error {
	return c.post(ctx, CallLock, "/sys-lock", lockBody{Status: "LOCKED", Evidence: orAbsent(evidence)}, nil)
}

func (c *Client) post(ctx context.Context, call, path string, body any, hdr http.Header) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Call: call, Err: err}
	}

	send := func() (struct{}, error) {
		return struct{}{}, c.do(ctx, call, path, data, hdr)
	}
	if cb, ok := c.breakers[call]; ok {
		_, err = cb.Execute(send)
	} else {
		_, err = send()
	}
	if err != nil {
		return &TransportError{Call: call, Err: err}
	}
	gatewayCalls.WithLabelValues(call, "ok").Inc()
	return nil
}

func (c *Client) do(ctx context.Context, call, path string, data []byte, hdr http.Header) error {
	if t := c.timeouts[call]; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Discard is the one policy for transport failures: they are logged at
// debug level, counted, and never propagated. It reports whether err was nil.
func Discard(err error) bool {
	if err == nil {
		return true
	}
	call := "unknown"
	var te *TransportError
	if errors.As(err, &te) {
		call = te.Call
	}
	reason := failureReason(err)
	gatewayCalls.WithLabelValues(call, reason).Inc()
	logging.Debug().Err(err).Str("call", call).Str("reason", reason).Msg("gateway call discarded")
	return false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func orAbsent(s string) string {
	if s == "" {
		return evidenceAbsent
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
