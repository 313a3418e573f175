package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type fakeHTTP struct {
	started  atomic.Bool
	stopped  atomic.Bool
	shutdown chan struct{}
}

func newFakeHTTP() *fakeHTTP { return &fakeHTTP{shutdown: make(chan struct{})} }

func (f *fakeHTTP) ListenAndServe() error {
	f.started.Store(true)
	<-f.shutdown
	return http.ErrServerClosed
}

func (f *fakeHTTP) Shutdown(context.Context) error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.shutdown)
	}
	return nil
}

func TestTreeEndsWhenFrameLoopFinishes(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	httpSrv := newFakeHTTP()
	tree.AddHTTPServer(httpSrv, time.Second)
	tree.AddFrameLoop(runnerFunc(func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tree.Serve(ctx))
	assert.True(t, httpSrv.started.Load())
	assert.True(t, httpSrv.stopped.Load(), "status server should be shut down with the tree")
}

func TestTreeReportsFrameLoopError(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	boom := errors.New("camera lost")
	tree.AddFrameLoop(runnerFunc(func(context.Context) error { return boom }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, tree.Serve(ctx), boom)
}

func TestTreeCancellation(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	tree.AddFrameLoop(runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.NoError(t, tree.Serve(ctx))
}
