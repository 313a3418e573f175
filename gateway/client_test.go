package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftahirops/xguard/model"
)

type captured struct {
	path    string
	alertID string
	ctype   string
	body    map[string]any
}

type fakeGateway struct {
	mu     sync.Mutex
	reqs   []captured
	status int
	delay  time.Duration
}

func (g *fakeGateway) handler(w http.ResponseWriter, r *http.Request) {
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)

	g.mu.Lock()
	g.reqs = append(g.reqs, captured{
		path:    r.URL.Path,
		alertID: r.Header.Get("X-Alert-ID"),
		ctype:   r.Header.Get("Content-Type"),
		body:    body,
	})
	status := g.status
	g.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (g *fakeGateway) requests() []captured {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]captured(nil), g.reqs...)
}

func newTestClient(t *testing.T, g *fakeGateway, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.handler))
	t.Cleanup(srv.Close)
	opts := DefaultOptions()
	opts.BaseURL = srv.URL + "/api/v1/"
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts)
}

func TestWireContract(t *testing.T) {
	g := &fakeGateway{}
	c := newTestClient(t, g, func(o *Options) {
		// generous bounds so slow CI does not trip the 50ms telemetry timeouts
		o.HeartbeatTimeout = time.Second
		o.StreamTimeout = time.Second
	})
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx, 29.876))
	require.NoError(t, c.Stream(ctx, "aGVsbG8=", true, 2))
	require.NoError(t, c.Alert(ctx, model.AlertEvent{
		ID:                   "8d7f0a7e-5c1e-4b5e-9d55-2b1f5f0f4a11",
		Type:                 model.AlertExfiltrationRisk,
		Description:          "Direct phone capture attempt",
		Severity:             model.SeverityCritical,
		EngineRuntimeSeconds: 12.3456,
	}))
	require.NoError(t, c.Lock(ctx, ""))

	reqs := g.requests()
	require.Len(t, reqs, 4)

	assert.Equal(t, "/api/v1/heartbeat", reqs[0].path)
	assert.Equal(t, "ACTIVE", reqs[0].body["engine"])
	assert.InDelta(t, 29.88, reqs[0].body["fps"], 1e-9)

	assert.Equal(t, "/api/v1/stream", reqs[1].path)
	assert.Equal(t, "aGVsbG8=", reqs[1].body["image"])
	assert.Equal(t, true, reqs[1].body["is_admin"])
	assert.EqualValues(t, 2, reqs[1].body["person_count"])

	alert := reqs[2]
	assert.Equal(t, "/api/v1/alert", alert.path)
	assert.Equal(t, "8d7f0a7e-5c1e-4b5e-9d55-2b1f5f0f4a11", alert.alertID)
	assert.Equal(t, "EXFILTRATION_RISK", alert.body["type"])
	assert.Equal(t, "Direct phone capture attempt", alert.body["item"])
	assert.Equal(t, "CRITICAL", alert.body["severity"])
	assert.InDelta(t, 12.35, alert.body["engine_runtime"], 1e-9)
	assert.Equal(t, "QS_WATERMARK_SYNCED", alert.body["trace_signature"])
	assert.Equal(t, "N/A", alert.body["evidence_frame"])

	assert.Equal(t, "/api/v1/sys-lock", reqs[3].path)
	assert.Equal(t, "LOCKED", reqs[3].body["status"])
	assert.Equal(t, "N/A", reqs[3].body["evidence"])

	for _, r := range reqs {
		assert.Equal(t, "application/json", r.ctype)
	}
}

func TestTimeoutIsTransportError(t *testing.T) {
	g := &fakeGateway{delay: 200 * time.Millisecond}
	c := newTestClient(t, g, func(o *Options) { o.BreakerEnabled = false })

	start := time.Now()
	err := c.Heartbeat(context.Background(), 30)
	elapsed := time.Since(start)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CallHeartbeat, te.Call)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 150*time.Millisecond, "heartbeat must not block past its timeout")
}

func TestNon2xxIsTransportError(t *testing.T) {
	g := &fakeGateway{status: http.StatusServiceUnavailable}
	c := newTestClient(t, g, nil)

	err := c.Alert(context.Background(), model.AlertEvent{Type: model.AlertVisualBreach, Severity: model.SeverityHigh})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CallAlert, te.Call)
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := DefaultOptions()
	opts.BaseURL = url
	c := NewClient(opts)

	err := c.Lock(context.Background(), "abc")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CallLock, te.Call)
	assert.False(t, Discard(err))
}

func TestBreakerOpensPerCall(t *testing.T) {
	g := &fakeGateway{status: http.StatusInternalServerError}
	c := newTestClient(t, g, func(o *Options) {
		o.ConsecutiveFailures = 3
		o.OpenTimeout = time.Minute
		o.HeartbeatTimeout = time.Second
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, c.Heartbeat(ctx, 1))
	}
	err := c.Heartbeat(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "expected open breaker, got %v", err)
	assert.Len(t, g.requests(), 3, "open breaker must not reach the gateway")

	// alerts have their own breaker and still go out
	assert.Equal(t, "closed", c.State())
	require.Error(t, c.Alert(ctx, model.AlertEvent{Type: model.AlertVisualBreach, Severity: model.SeverityHigh}))
	assert.Len(t, g.requests(), 4)
}

func TestDiscard(t *testing.T) {
	assert.True(t, Discard(nil))
	assert.False(t, Discard(&TransportError{Call: CallStream, Err: context.DeadlineExceeded}))
	assert.False(t, Discard(errors.New("plain")))
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&TransportError{Call: CallAlert, Err: gobreaker.ErrOpenState}, "breaker_open"},
		{&TransportError{Call: CallAlert, Err: gobreaker.ErrTooManyRequests}, "breaker_open"},
		{&TransportError{Call: CallAlert, Err: context.DeadlineExceeded}, "timeout"},
		{&TransportError{Call: CallAlert, Err: errors.New("refused")}, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err))
	}
}
