// Package session implements one gateway voice session: the lifetime of a
// client websocket, its single upstream provider session, and the relay
// between them.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleo-app/parleo/pkg/gateway/admission"
	"github.com/parleo-app/parleo/pkg/gateway/metrics"
	"github.com/parleo-app/parleo/pkg/gateway/upstream"
	"github.com/parleo-app/parleo/pkg/gateway/voice/protocol"
)

// Config bounds one session.
type Config struct {
	// Languages holds lower-cased allowed language names.
	Languages map[string]bool
	// MaxDuration force-closes the session after this much time from a
	// successful init.
	MaxDuration time.Duration
	// MaxPending bounds frames queued between init and upstream-open.
	MaxPending int
	// InitTimeout bounds the handshake: the client must send a valid init
	// within this long of connecting or the socket is dropped.
	InitTimeout time.Duration

	ReadLimit      int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = 10 * time.Minute
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 256
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	return c
}

// Deps are the collaborators a session needs. Everything is injected so
// tests can substitute fakes.
type Deps struct {
	Provider   upstream.Provider
	Admission  *admission.Store
	Bookkeeper *upstream.Bookkeeper
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

type wsConn interface {
	wsWriter
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
}

// pendingSend is one client frame accepted before the upstream session
// opened, held for FIFO drain at upstream-open.
type pendingSend struct {
	audio        []byte
	turns        []upstream.Turn
	turnComplete bool
}

// Session relays between one client socket and one upstream session.
type Session struct {
	id   string
	ip   string
	ws   wsConn
	cfg  Config
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	control chan []byte
	relay   chan []byte

	mu            sync.Mutex
	initDone      bool
	closed        bool
	up            upstream.Session
	pending       []pendingSend
	permit        *admission.Permit
	startedAt     time.Time
	language      string
	mode          string
	durationTimer *time.Timer

	cleanupOnce sync.Once
}

// New builds a session for an accepted websocket. ip is the admission key
// already resolved by the handler.
func New(ws wsConn, ip string, cfg Config, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		id:      uuid.NewString(),
		ip:      ip,
		ws:      ws,
		cfg:     cfg.withDefaults(),
		deps:    deps,
		control: make(chan []byte, 8),
		relay:   make(chan []byte, 64),
	}
}

// ID returns the session identifier used in logs and bookkeeping.
func (s *Session) ID() string { return s.id }

func (s *Session) initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initDone
}

// Stop tears the session down, telling the client first. Used by the
// server during shutdown. Safe to call before or after Run ends.
func (s *Session) Stop() {
	s.sendCloseEvent()
	s.cleanup("server shutdown")
}

// Notify sends a gateway error event without closing the session.
func (s *Session) Notify(code, message string) error {
	s.sendError(code, message)
	return nil
}

// Run drives the session until the socket closes, the upstream ends, the
// duration limit fires, or ctx is canceled. It always returns with all
// resources released.
func (s *Session) Run(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cleanup("connection closed")

	s.ws.SetReadLimit(s.cfg.ReadLimit)
	// The handshake runs under a short deadline; only an accepted init
	// moves the socket to the normal read timeout.
	_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.InitTimeout))
	s.ws.SetPongHandler(func(string) error {
		if !s.initialized() {
			return nil
		}
		return s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	writer := &outboundWriter{
		ws:           s.ws,
		ctx:          s.ctx,
		control:      s.control,
		relay:        s.relay,
		pingInterval: s.cfg.PingInterval,
		writeTimeout: s.cfg.WriteTimeout,
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil {
			s.deps.Logger.Debug("session writer stopped", "session", s.id, "error", err)
		}
		s.cancel()
	}()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			break
		}
		s.handleFrame(data)
		if s.initialized() {
			_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		select {
		case <-s.ctx.Done():
		default:
			continue
		}
		break
	}

	s.cleanup("connection closed")
	<-writerDone
}

func (s *Session) handleFrame(data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			s.sendError(de.Code, de.Message)
		} else {
			s.sendError("bad_request", "invalid frame")
		}
		return
	}
	switch m := msg.(type) {
	case protocol.ClientInit:
		s.handleInit(m)
	case protocol.ClientRealtime:
		s.handleRealtime(m)
	case protocol.ClientContent:
		s.handleContent(m)
	case nil:
		// unknown frame types are ignored
	}
}

func (s *Session) handleInit(msg protocol.ClientInit) {
	s.mu.Lock()
	if s.initDone {
		s.mu.Unlock()
		s.sendError("already_initialized", "session already initialized")
		return
	}
	s.mu.Unlock()

	valid, derr := protocol.ValidateInit(msg, s.cfg.Languages)
	if derr != nil {
		s.deps.Metrics.ObserveError("init")
		s.sendError(derr.Code, derr.Message)
		return
	}

	decision := s.deps.Admission.Acquire(s.ip)
	if !decision.Allowed {
		s.deps.Metrics.ObserveDenial(decision.Reason)
		s.sendError("rate_limited", decision.Reason)
		s.shutdown("admission denied")
		return
	}

	now := s.deps.Now()
	s.mu.Lock()
	if s.closed {
		// cleanup already ran; nothing below would ever release these
		s.mu.Unlock()
		decision.Permit.Release()
		return
	}
	s.initDone = true
	s.permit = decision.Permit
	s.startedAt = now
	s.language = valid.Language
	s.mode = valid.PronunciationMode
	s.durationTimer = time.AfterFunc(s.cfg.MaxDuration, func() {
		s.sendCloseEvent()
		s.shutdown("duration limit")
	})
	s.mu.Unlock()

	// handshake over: the socket moves to the normal read timeout
	_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	s.deps.Metrics.ObserveSessionStart(valid.Language, valid.PronunciationMode)
	s.deps.Bookkeeper.SessionStarted(s.ctx, s.id, s.ip, valid.Language, valid.PronunciationMode, now)
	s.deps.Logger.Info("voice session initialized",
		"session", s.id, "ip", s.ip, "language", valid.Language, "mode", valid.PronunciationMode)

	go s.connectUpstream(upstream.SessionConfig{
		Language:          valid.Language,
		Context:           valid.Context,
		PronunciationMode: valid.PronunciationMode,
	})
}

func (s *Session) connectUpstream(cfg upstream.SessionConfig) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	defer cancel()

	up, err := s.deps.Provider.Connect(ctx, cfg)
	if err != nil {
		s.deps.Metrics.ObserveError("upstream_connect")
		s.deps.Logger.Error("upstream connect failed", "session", s.id, "error", err)
		s.sendError("upstream_unavailable", "could not reach the speech service")
		s.shutdown("upstream connect failed")
		return
	}

	s.mu.Lock()
	select {
	case <-s.ctx.Done():
		s.mu.Unlock()
		_ = up.Close()
		return
	default:
	}
	s.up = up
	// Drain while holding the lock so frames arriving now cannot jump
	// ahead of the queue.
	queued := s.pending
	s.pending = nil
	for _, p := range queued {
		s.forwardLocked(p)
	}
	s.mu.Unlock()

	s.sendControl(protocol.NewOpen())
	s.deps.Logger.Debug("upstream open", "session", s.id, "queued", len(queued))
	go s.receiveLoop(up)
}

func (s *Session) receiveLoop(up upstream.Session) {
	for {
		raw, err := up.Receive()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				s.deps.Logger.Info("upstream ended", "session", s.id, "error", err)
			}
			s.sendCloseEvent()
			s.shutdown("upstream closed")
			return
		}
		s.deps.Metrics.ObserveRelayed(len(raw))
		select {
		case s.relay <- raw:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleRealtime(msg protocol.ClientRealtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initDone {
		s.sendError("not_initialized", "the first frame must be init")
		go s.shutdown("handshake violation")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(msg.Audio.Data)
	if err != nil {
		s.sendError("bad_request", "realtime.audio.data is not valid base64")
		return
	}
	s.deps.Metrics.ObserveInboundAudio(len(audio))

	if s.up == nil {
		s.enqueueLocked(pendingSend{audio: audio})
		return
	}
	s.forwardLocked(pendingSend{audio: audio})
}

func (s *Session) handleContent(msg protocol.ClientContent) {
	turns := make([]upstream.Turn, 0, len(msg.Turns))
	for _, t := range msg.Turns {
		parts := make([]string, 0, len(t.Parts))
		for _, p := range t.Parts {
			parts = append(parts, p.Text)
		}
		turns = append(turns, upstream.Turn{Role: t.Role, Parts: parts})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initDone {
		s.sendError("not_initialized", "the first frame must be init")
		go s.shutdown("handshake violation")
		return
	}
	if s.up == nil {
		s.enqueueLocked(pendingSend{turns: turns, turnComplete: msg.TurnComplete})
		return
	}
	s.forwardLocked(pendingSend{turns: turns, turnComplete: msg.TurnComplete})
}

// enqueueLocked must run with s.mu held.
func (s *Session) enqueueLocked(p pendingSend) {
	if len(s.pending) >= s.cfg.MaxPending {
		s.sendError("overloaded", "too many frames queued before session open")
		go s.shutdown("pending overflow")
		return
	}
	s.pending = append(s.pending, p)
}

// forwardLocked must run with s.mu held and s.up non-nil.
func (s *Session) forwardLocked(p pendingSend) {
	var err error
	if p.audio != nil {
		err = s.up.SendAudio(p.audio)
	} else {
		err = s.up.SendContent(p.turns, p.turnComplete)
	}
	if err != nil {
		s.deps.Metrics.ObserveError("upstream_send")
		s.deps.Logger.Warn("upstream send failed", "session", s.id, "error", err)
	}
}

func (s *Session) sendError(code, message string) {
	s.sendControl(protocol.NewError(code, message))
}

func (s *Session) sendCloseEvent() {
	s.sendControl(protocol.NewClose())
}

func (s *Session) sendControl(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if s.ctx == nil {
		// Run has not started yet; never block the caller.
		select {
		case s.control <- payload:
		default:
		}
		return
	}
	select {
	case s.control <- payload:
	case <-s.ctx.Done():
	}
}

// shutdown ends the session with the given reason. The first reason to
// arrive wins; later calls are no-ops.
func (s *Session) shutdown(reason string) {
	s.cleanup(reason)
}

func (s *Session) cleanup(reason string) {
	s.cleanupOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		s.mu.Lock()
		s.closed = true
		up := s.up
		s.up = nil
		permit := s.permit
		timer := s.durationTimer
		initDone := s.initDone
		startedAt := s.startedAt
		s.pending = nil
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if up != nil {
			_ = up.Close()
		}
		if permit != nil {
			permit.Release()
		}
		if initDone {
			now := s.deps.Now()
			s.deps.Metrics.ObserveSessionEnd(reason, now.Sub(startedAt))
			s.deps.Bookkeeper.SessionEnded(context.Background(), s.id, now)
		}
		s.deps.Logger.Info("voice session ended", "session", s.id, "reason", reason)
	})
}
