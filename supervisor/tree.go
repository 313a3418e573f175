// Package supervisor runs the frame loop and the status server under a
// suture supervision tree.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behaviour.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture settings suited to a single-host agent.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the root supervisor. The frame loop is the only service whose
// exit ends the tree; the status server is restarted on failure.
type Tree struct {
	root *suture.Supervisor

	mu  sync.Mutex
	err error // why the frame loop stopped
}

// NewTree creates the root supervisor with a slog event hook.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	handler := &sutureslog.Handler{Logger: logger}
	return &Tree{
		root: suture.New("xguard", suture.Spec{
			EventHook:        handler.MustHook(),
			FailureThreshold: cfg.FailureThreshold,
			FailureDecay:     cfg.FailureDecay,
			FailureBackoff:   cfg.FailureBackoff,
			Timeout:          cfg.ShutdownTimeout,
		}),
	}
}

// Runner is a blocking job such as engine.Engine.Run.
type Runner interface {
	Run(ctx context.Context) error
}

// AddFrameLoop adds the detection loop. When it returns, cleanly or not,
// the whole tree terminates and Serve reports its error.
func (t *Tree) AddFrameLoop(r Runner) suture.ServiceToken {
	return t.root.Add(&frameLoopService{runner: r, tree: t})
}

// AddHTTPServer adds a restartable HTTP server.
func (t *Tree) AddHTTPServer(srv HTTPServer, shutdownTimeout time.Duration) suture.ServiceToken {
	return t.root.Add(NewHTTPServerService(srv, shutdownTimeout))
}

// Serve runs the tree until ctx is cancelled or the frame loop ends. It
// returns the frame loop's error, nil for end-of-stream or cancellation.
func (t *Tree) Serve(ctx context.Context) error {
	err := t.root.Serve(ctx)
	t.mu.Lock()
	loopErr := t.err
	t.mu.Unlock()
	if loopErr != nil {
		return loopErr
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, suture.ErrTerminateSupervisorTree) {
		return nil
	}
	return err
}

func (t *Tree) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

type frameLoopService struct {
	runner Runner
	tree   *Tree
}

func (s *frameLoopService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.tree.setErr(err)
	}
	return suture.ErrTerminateSupervisorTree
}

func (s *frameLoopService) String() string { return "frame-loop" }

// HTTPServer is satisfied by *http.Server and *server.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts an HTTPServer to suture.Service.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string { return "status-server" }
