// Package server exposes liveness sessions over a REST API and a
// bidirectional websocket stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/metrics"
	"github.com/jtejido/fingerlive/session"
)

type Server struct {
	cfg       config.ServerConfig
	decoder   *frame.Decoder
	maxFrames int
	sessions  *session.Manager
	registry *prometheus.Registry
	log      zerolog.Logger

	app      *fiber.App
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New wires both transports onto sessions. m may be nil, in which case
// /metrics serves only the runtime collectors.
func New(cfg *config.Config, sessions *session.Manager, m *metrics.Metrics, log zerolog.Logger) *Server {
	var registry *prometheus.Registry
	if m != nil {
		registry = m.Registry()
	} else {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:       cfg.Server,
		decoder:   frame.NewDecoder(cfg.Frame),
		maxFrames: cfg.Decision.MaxFramesToAnalyze,
		sessions:  sessions,
		registry: registry,
		log:      log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.app = s.newApp()
	s.router = s.newRouter()
	return s
}

// App returns the REST application.
func (s *Server) App() *fiber.App { return s.app }

// Router returns the stream handler.
func (s *Server) Router() http.Handler { return s.router }

// Run serves REST on cfg.HTTPAddr and the stream on cfg.StreamAddr until ctx
// is done or either listener fails. Idle sessions are reaped meanwhile.
func (s *Server) Run(ctx context.Context) error {
	stream := &http.Server{
		Addr:              s.cfg.StreamAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		s.log.Info().Str("addr", s.cfg.HTTPAddr).Msg("REST API listening")
		errc <- s.app.Listen(s.cfg.HTTPAddr)
	}()
	go func() {
		s.log.Info().Str("addr", s.cfg.StreamAddr).Msg("stream listening")
		if err := stream.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	reap := time.NewTicker(max(s.cfg.SessionIdle/4, time.Second))
	defer reap.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err = <-errc:
			break loop
		case <-reap.C:
			if n := s.sessions.Reap(s.cfg.SessionIdle); n > 0 {
				s.log.Info().Int("sessions", n).Msg("closed idle sessions")
			}
		}
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e := stream.Shutdown(shutdownCtx); e != nil {
		s.log.Warn().Err(e).Msg("stream shutdown")
	}
	if e := s.app.ShutdownWithContext(shutdownCtx); e != nil {
		s.log.Warn().Err(e).Msg("REST shutdown")
	}
	s.sessions.CloseAll()
	return err
}
