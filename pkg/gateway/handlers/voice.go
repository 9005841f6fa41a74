package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/parleo-app/parleo/pkg/gateway/admission"
	"github.com/parleo-app/parleo/pkg/gateway/clientip"
	"github.com/parleo-app/parleo/pkg/gateway/config"
	"github.com/parleo-app/parleo/pkg/gateway/metrics"
	"github.com/parleo-app/parleo/pkg/gateway/upstream"
	"github.com/parleo-app/parleo/pkg/gateway/voice/session"
	"github.com/parleo-app/parleo/pkg/gateway/voice/sessions"
)

// VoiceHandler upgrades /voice requests and runs one relay session per
// connection.
type VoiceHandler struct {
	Config     config.Config
	Provider   upstream.Provider
	Admission  *admission.Store
	Bookkeeper *upstream.Bookkeeper
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Sessions   *sessions.Tracker
	Draining   *atomic.Bool
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Draining != nil && h.Draining.Load() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return
	}

	ip := clientip.Resolver{TrustProxyHeaders: h.Config.TrustProxyHeaders}.FromRequest(r)

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "ip", ip, "error", err)
		}
		return
	}
	defer conn.Close()

	s := session.New(conn, ip, session.Config{
		Languages:      h.Config.Languages,
		MaxDuration:    h.Config.MaxSessionDuration,
		MaxPending:     h.Config.MaxPendingFrames,
		InitTimeout:    h.Config.InitTimeout,
		ReadLimit:      h.Config.WSReadLimit,
		ReadTimeout:    h.Config.WSReadTimeout,
		WriteTimeout:   h.Config.WSWriteTimeout,
		PingInterval:   h.Config.WSPingInterval,
		ConnectTimeout: h.Config.ConnectTimeout,
	}, session.Deps{
		Provider:   h.Provider,
		Admission:  h.Admission,
		Bookkeeper: h.Bookkeeper,
		Metrics:    h.Metrics,
		Logger:     h.Logger,
	})

	unregister := h.Sessions.Register(s.ID(), ip, sessions.Handle{
		Stop:   s.Stop,
		Notify: s.Notify,
	})
	defer unregister()

	s.Run(r.Context())
}

func (h VoiceHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
