package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ftahirops/xguard/config"
	"github.com/ftahirops/xguard/engine"
	"github.com/ftahirops/xguard/gateway"
	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/server"
	"github.com/ftahirops/xguard/supervisor"
	"github.com/ftahirops/xguard/ui"
)

// agent is everything one run owns. close releases files and connections.
type agent struct {
	engine  *engine.Engine
	server  *server.Server // nil when the status server is disabled
	closers []func()
}

func (a *agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildAgent wires the gateway client, dispatcher and frame loop over src.
func buildAgent(cfg config.Config, src engine.DetectionSource) (*agent, error) {
	a := &agent{}

	client := gateway.NewClient(gateway.Options{
		BaseURL:             cfg.Gateway.URL,
		HeartbeatTimeout:    cfg.Gateway.HeartbeatTimeout,
		StreamTimeout:       cfg.Gateway.StreamTimeout,
		AlertTimeout:        cfg.Gateway.AlertTimeout,
		LockTimeout:         cfg.Gateway.LockTimeout,
		BreakerEnabled:      cfg.Gateway.Breaker.Enabled,
		ConsecutiveFailures: cfg.Gateway.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Gateway.Breaker.OpenTimeout,
		HalfOpenRequests:    cfg.Gateway.Breaker.HalfOpenRequests,
	})

	d := &engine.Dispatcher{
		Gate:        engine.NewCooldownGate(cfg.Engine.AlertThreshold),
		Evidence:    engine.NewEvidenceCapture(cfg.Storage.EvidenceDir),
		Audit:       engine.NewAuditLog(cfg.Storage.AuditLog),
		Gateway:     client,
		Locker:      engine.NewSessionLocker(cfg.Lock.Enabled),
		LockTimeout: cfg.Lock.Timeout,
		StartedAt:   time.Now(),
	}

	if cfg.Bus.URL != "" {
		bus, err := gateway.NewBusPublisher(cfg.Bus.URL, cfg.Bus.Subject)
		if err != nil {
			return nil, fmt.Errorf("alert bus: %w", err)
		}
		d.Publisher = bus
		a.closers = append(a.closers, bus.Close)
	}

	status := engine.NewStatusStore()
	a.engine = engine.New(engine.Options{
		GazeThreshold: cfg.Engine.GazeThreshold,
		SOSHoldTime:   cfg.Engine.SOSHoldTime,
		Thresholds:    thresholds(cfg.Engine),
		StreamEnabled: cfg.Gateway.StreamEnabled,
		StreamQuality: cfg.Engine.StreamQuality,
		BlurSigma:     cfg.Engine.PrivacyBlur,
	}, src, d, status)

	if cfg.Status.Enabled {
		a.server = server.New(status, server.Options{
			Addr:        cfg.Status.Addr,
			CORSOrigins: cfg.Status.CORSOrigins,
		})
	}
	return a, nil
}

func thresholds(ec config.EngineConfig) engine.Thresholds {
	return engine.Thresholds{
		PersonClass:      ec.PersonClass,
		DeviceClass:      ec.DeviceClass,
		PersonConfidence: ec.PersonConfidence,
		DeviceConfidence: ec.DeviceConfidence,
		DeviceAreaRatio:  ec.DeviceAreaRatio,
	}
}

// openSource opens the detection records and, with -record, tees them to a
// file. The returned closer releases both.
func openSource(cfg config.Config, opts Options) (engine.DetectionSource, func(), error) {
	var r io.Reader = os.Stdin
	var closers []func()
	baseDir := "."

	if opts.SourcePath != "" && opts.SourcePath != "-" {
		f, err := os.Open(opts.SourcePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open source: %w", err)
		}
		r = f
		baseDir = filepath.Dir(opts.SourcePath)
		closers = append(closers, func() { f.Close() })
	}

	var src engine.DetectionSource = engine.NewPlayer(r, engine.PlayerOptions{
		Width:      cfg.Engine.FrameWidth,
		Height:     cfg.Engine.FrameHeight,
		Thresholds: thresholds(cfg.Engine),
		Pace:       opts.Pace,
		BaseDir:    baseDir,
	})

	if opts.RecordPath != "" {
		out, err := os.Create(opts.RecordPath)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, fmt.Errorf("create recording: %w", err)
		}
		src = engine.NewRecorder(src, out)
		closers = append(closers, func() { out.Close() })
	}

	return src, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func runAgent(cfg config.Config, opts Options) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	if opts.TUI {
		f, err := os.OpenFile(opts.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logCfg.Output = f
	}
	logging.Init(logCfg)

	src, closeSource, err := openSource(cfg, opts)
	if err != nil {
		return err
	}
	defer closeSource()

	a, err := buildAgent(cfg, src)
	if err != nil {
		return err
	}
	defer a.close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddFrameLoop(a.engine)
	if a.server != nil {
		tree.AddHTTPServer(a.server, 5*time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("version", Version).
		Str("gateway", cfg.Gateway.URL).
		Str("source", opts.SourcePath).
		Bool("status_server", a.server != nil).
		Msg("SYSTEM_ARMED")

	if !opts.TUI {
		err := tree.Serve(ctx)
		if err != nil {
			logging.Err(err).Msg("frame loop stopped")
		}
		logging.Info().Msg("SYSTEM_DISARMED")
		return err
	}
	return runTUI(ctx, tree, a.engine, cfg.Storage.AuditLog)
}

// runTUI runs the tree beside the status view. Quitting the view stops the
// tree; the tree ending leaves the view open with a final state.
func runTUI(ctx context.Context, tree *supervisor.Tree, eng *engine.Engine, auditPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(eng.Status(), auditPath), tea.WithAltScreen(), tea.WithContext(ctx))
	eng.SetRenderer(ui.Sink{Program: p})

	done := make(chan error, 1)
	go func() {
		err := tree.Serve(ctx)
		p.Send(ui.EngineDoneMsg{Err: err})
		done <- err
	}()

	_, uiErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	treeErr := <-done
	if treeErr != nil {
		logging.Err(treeErr).Msg("frame loop stopped")
	}
	logging.Info().Msg("SYSTEM_DISARMED")
	if treeErr != nil {
		return treeErr
	}
	if uiErr != nil && !interrupted {
		return uiErr
	}
	return nil
}
