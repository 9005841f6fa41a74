// Package server assembles the gateway: routes, middleware, and the
// shared session infrastructure.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/parleo-app/parleo/pkg/gateway/admission"
	"github.com/parleo-app/parleo/pkg/gateway/config"
	"github.com/parleo-app/parleo/pkg/gateway/handlers"
	"github.com/parleo-app/parleo/pkg/gateway/metrics"
	"github.com/parleo-app/parleo/pkg/gateway/mw"
	"github.com/parleo-app/parleo/pkg/gateway/upstream"
	"github.com/parleo-app/parleo/pkg/gateway/voice/sessions"
)

// admissionGCInterval paces cleanup of idle per-IP admission entries.
const admissionGCInterval = 10 * time.Minute

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	provider   upstream.Provider
	admission  *admission.Store
	bookkeeper *upstream.Bookkeeper
	metrics    *metrics.Metrics
	sessions   *sessions.Tracker
	draining   atomic.Bool

	gcStop chan struct{}
}

// New builds a Server. provider may be nil in tests that never hit the
// voice route.
func New(cfg config.Config, provider upstream.Provider, bookkeeper *upstream.Bookkeeper, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("parleo")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		mux:      http.NewServeMux(),
		provider: provider,
		admission: admission.NewStore(admission.Config{
			MaxConcurrent: cfg.MaxConcurrentPerIP,
			MaxPerWindow:  cfg.MaxSessionsPerIPHour,
		}, nil),
		bookkeeper: bookkeeper,
		metrics:    m,
		sessions:   sessions.NewTracker(),
		gcStop:     make(chan struct{}),
	}

	s.routes()
	go s.admissionGCLoop()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.Handle("/voice", handlers.VoiceHandler{
		Config:     s.cfg,
		Provider:   s.provider,
		Admission:  s.admission,
		Bookkeeper: s.bookkeeper,
		Metrics:    s.metrics,
		Logger:     s.logger,
		Sessions:   s.sessions,
		Draining:   &s.draining,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining makes the voice route refuse new sessions.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

// DrainSessions warns live sessions and waits for them to finish until
// ctx ends. It returns the sessions still live when the wait gave up.
func (s *Server) DrainSessions(ctx context.Context) []sessions.Info {
	notified, stragglers := s.sessions.Drain(ctx, "draining", "server is restarting, please reconnect")
	s.logger.Info("draining voice sessions", "notified", notified, "remaining", len(stragglers))
	return stragglers
}

// StopSessions force-closes any sessions still running.
func (s *Server) StopSessions() int {
	return s.sessions.StopAll()
}

// Close stops background work. It does not touch live sessions.
func (s *Server) Close() {
	select {
	case <-s.gcStop:
	default:
		close(s.gcStop)
	}
}

func (s *Server) admissionGCLoop() {
	ticker := time.NewTicker(admissionGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.admission.GC()
		case <-s.gcStop:
			return
		}
	}
}
