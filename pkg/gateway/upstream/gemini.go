package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/genai"
)

// DefaultModel is the live dialogue model used when none is configured.
const DefaultModel = "gemini-2.0-flash-live-001"

// DefaultVoice is the prebuilt provider voice for tutor speech.
const DefaultVoice = "Aoede"

// GeminiProvider opens live sessions against the Gemini realtime API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	voice  string
	logger *slog.Logger
}

// NewGeminiProvider builds a provider from an API key. model and voice may
// be empty to use the defaults.
func NewGeminiProvider(ctx context.Context, apiKey, model, voice string, logger *slog.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("upstream: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: create client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiProvider{client: client, model: model, voice: voice, logger: logger}, nil
}

// Connect opens one live session configured for audio responses with the
// tutor system prompt for cfg.
func (p *GeminiProvider) Connect(ctx context.Context, cfg SessionConfig) (Session, error) {
	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: BuildSystemPrompt(cfg)}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.voice},
			},
		},
	}
	live, err := p.client.Live.Connect(ctx, p.model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("upstream: connect %s: %w", p.model, err)
	}
	p.logger.Debug("upstream session opened", "model", p.model, "language", cfg.Language, "mode", cfg.PronunciationMode)
	return &geminiSession{live: live}, nil
}

type geminiSession struct {
	live *genai.Session

	mu     sync.Mutex
	closed bool
}

func (s *geminiSession) SendAudio(data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("upstream: session closed")
	}
	err := s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: "audio/pcm;rate=16000",
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("upstream: send audio: %w", err)
	}
	return nil
}

func (s *geminiSession) SendContent(turns []Turn, turnComplete bool) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("upstream: session closed")
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := t.Role
		if role == "" {
			role = "user"
		}
		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, text := range t.Parts {
			parts = append(parts, &genai.Part{Text: text})
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: parts,
		})
	}
	err := s.live.SendClientContent(genai.LiveSendClientContentParameters{
		Turns:        contents,
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("upstream: send content: %w", err)
	}
	return nil
}

func (s *geminiSession) Receive() (json.RawMessage, error) {
	msg, err := s.live.Receive()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("upstream: encode message: %w", err)
	}
	return raw, nil
}

func (s *geminiSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.live.Close()
}
