package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dialer opens a transport. DialGateway and ConnectDirect both fit after
// currying their endpoint argument.
type Dialer func(ctx context.Context, opts SessionOptions, events Events) (Transport, error)

// VoiceSessionConfig assembles a client pipeline.
type VoiceSessionConfig struct {
	Options  SessionOptions
	Recorder Recorder
	Sink     Sink

	// MinBuffer is passed through to playback pre-buffering.
	MinBuffer time.Duration

	// OnStateChange observes every lifecycle move with both endpoints,
	// so a UI can tell a speaking turn ending apart from the initial
	// connect reaching listening.
	OnStateChange func(from, to State)
	OnError       func(error)
	Logger        *slog.Logger
}

// VoiceSession ties one transport to the local audio pipeline: provider
// speech is scheduled on the sink, learner audio flows from the recorder
// to the transport, and the state machine tracks the conversation.
type VoiceSession struct {
	cfg  VoiceSessionConfig
	dial Dialer

	sm       *stateMachine
	playback *Playback
	capture  *Capture

	mu        sync.Mutex
	transport Transport

	closeOnce sync.Once
}

// NewVoiceSession wires the pipeline but does not connect yet.
func NewVoiceSession(dial Dialer, cfg VoiceSessionConfig) *VoiceSession {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &VoiceSession{cfg: cfg, dial: dial}
	s.sm = newStateMachine(cfg.OnStateChange)

	s.playback = NewPlayback(cfg.Sink, PlaybackConfig{
		SampleRate: OutputSampleRate,
		MinBuffer:  cfg.MinBuffer,
		OnSpeakingStart: func() {
			s.sm.transition(StateSpeaking)
		},
		OnSpeakingEnd: func() {
			s.sm.transition(StateListening)
		},
	})

	policy := CaptureOnFirstAudio
	if cfg.Options.PronunciationMode == "score" {
		policy = CaptureImmediately
	}
	s.capture = NewCapture(cfg.Recorder, policy, s.sendAudio)

	return s
}

// State reports the current lifecycle state.
func (s *VoiceSession) State() State {
	return s.sm.State()
}

// Start connects the transport. The session becomes listening once the
// far end reports ready.
func (s *VoiceSession) Start(ctx context.Context) error {
	if !s.sm.transition(StateConnecting) {
		return fmt.Errorf("session already started")
	}

	transport, err := s.dial(ctx, s.cfg.Options, Events{
		OnOpen:    s.onOpen,
		OnMessage: s.onMessage,
		OnError:   s.onError,
		OnClose:   func() { s.Close() },
	})
	if err != nil {
		s.sm.transition(StateIdle)
		return fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()
	return nil
}

// SendText submits a typed learner message mid-conversation.
func (s *VoiceSession) SendText(text string) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return fmt.Errorf("session is not connected")
	}
	return transport.SendTurnContent([]Turn{{Role: "user", Text: text}}, true)
}

// Close tears the whole pipeline down. Safe to call more than once.
func (s *VoiceSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		transport := s.transport
		s.transport = nil
		s.mu.Unlock()

		_ = s.capture.Stop()
		_ = s.playback.Interrupt()
		if transport != nil {
			_ = transport.Close()
		}
		s.sm.transition(StateIdle)
		s.cfg.Logger.Debug("voice session closed")
	})
}

func (s *VoiceSession) onOpen() {
	s.sm.transition(StateListening)
	if err := s.capture.Arm(); err != nil {
		s.onError(fmt.Errorf("arm capture: %w", err))
	}
}

func (s *VoiceSession) onError(err error) {
	s.cfg.Logger.Warn("voice session error", "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

// providerPayload is the slice of the provider message shape the client
// acts on. Everything else in the payload is ignored, not rejected.
type providerPayload struct {
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MIMEType string `json:"mimeType"`
					Data     []byte `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		Interrupted  bool `json:"interrupted"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
}

func (s *VoiceSession) onMessage(raw json.RawMessage) {
	var payload providerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.cfg.Logger.Debug("unparseable provider payload", "error", err)
		return
	}
	sc := payload.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted {
		// barge-in: the learner spoke over the tutor
		if err := s.playback.Interrupt(); err != nil {
			s.onError(fmt.Errorf("interrupt playback: %w", err))
		}
		return
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if err := s.playback.Enqueue(part.InlineData.Data); err != nil {
				s.onError(fmt.Errorf("enqueue tutor audio: %w", err))
				continue
			}
			if err := s.capture.TutorSpoke(); err != nil {
				s.onError(fmt.Errorf("open microphone: %w", err))
			}
		}
	}

	if sc.TurnComplete {
		if err := s.playback.Flush(); err != nil {
			s.onError(fmt.Errorf("flush playback: %w", err))
		}
	}
}

func (s *VoiceSession) sendAudio(pcm []byte) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.SendRealtimeAudio(pcm)
}
