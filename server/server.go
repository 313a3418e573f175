// Package server exposes the agent's status to local dashboards.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/xguard/logging"
	"github.com/ftahirops/xguard/model"
)

// StatusReader is the read side of the engine's status store.
type StatusReader interface {
	Snapshot() model.Status
	AdminVerified() bool
}

// Options configures the status server.
type Options struct {
	Addr         string
	CORSOrigins  []string
	PushInterval time.Duration // websocket status feed period
}

// Server serves /api/v1/vision-status, the websocket status feed,
// Prometheus metrics and a health probe.
type Server struct {
	status   StatusReader
	opts     Options
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server; it does not listen until ListenAndServe.
func New(status StatusReader, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{status: status, opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      s.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/vision-status", s.handleVisionStatus)
		r.Get("/vision-stream", s.handleVisionStream)
	})
	return r
}

type visionStatus struct {
	Active        bool `json:"active"`
	AdminVerified bool `json:"admin_verified"`
}

func (s *Server) handleVisionStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.status.Snapshot()
	writeJSON(w, visionStatus{Active: st.Active, AdminVerified: s.status.AdminVerified()})
}

func (s *Server) handleVisionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// the client only listens; reading detects when it goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()
	for {
		if err := s.push(conn); err != nil {
			logging.Debug().Err(err).Msg("websocket client dropped")
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) push(conn *websocket.Conn) error {
	data, err := json.Marshal(s.status.Snapshot())
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser client on the local host
	}
	for _, o := range s.opts.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.opts.Addr }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// returned after Shutdown.
func (s *Server) ListenAndServe() error {
	logging.Info().Str("addr", s.opts.Addr).Msg("status server listening")
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return s.http.Close()
	}
	return err
}
