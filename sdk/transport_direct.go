package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const (
	defaultDirectModel = "gemini-2.0-flash-live-001"
	defaultDirectVoice = "Aoede"
)

// directTransport holds the provider session on the client itself, with
// no gateway in between. The callback surface is identical to the
// gateway transport, so callers switch between them freely.
type directTransport struct {
	live   *genai.Session
	events Events

	once sync.Once
	done chan struct{}
}

// ConnectDirect opens a provider session straight from the client. The
// caller supplies its own API key, so this path is for trusted clients
// and local development rather than the browser app.
func ConnectDirect(ctx context.Context, apiKey string, opts SessionOptions, events Events) (Transport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("connect direct: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("connect direct: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultDirectModel
	}
	voice := opts.Voice
	if voice == "" {
		voice = defaultDirectVoice
	}

	live, err := client.Live.Connect(ctx, model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: directSystemPrompt(opts)}},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect direct %s: %w", model, err)
	}

	t := &directTransport{
		live:   live,
		events: events,
		done:   make(chan struct{}),
	}
	go t.receiveLoop()

	if events.OnOpen != nil {
		events.OnOpen()
	}
	return t, nil
}

func directSystemPrompt(opts SessionOptions) string {
	mode := opts.PronunciationMode
	if mode == "" {
		mode = "guide"
	}
	if mode == "score" {
		return fmt.Sprintf(
			"You are a %s pronunciation coach. Lesson focus: %s. The learner reads phrases aloud; give brief feedback in %s after each attempt and model the phrase once. Wait for the learner to speak first.",
			opts.Language, opts.Context, opts.Language)
	}
	return fmt.Sprintf(
		"You are a friendly %s tutor having a spoken conversation with a learner. Lesson focus: %s. Speak only %s, slowly and clearly. Open the conversation yourself with a short greeting.",
		opts.Language, opts.Context, opts.Language)
}

func (t *directTransport) SendRealtimeAudio(pcm []byte) error {
	err := t.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate),
			Data:     pcm,
		},
	})
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (t *directTransport) SendTurnContent(turns []Turn, turnComplete bool) error {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	err := t.live.SendClientContent(genai.LiveSendClientContentParameters{
		Turns:        contents,
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("send content: %w", err)
	}
	return nil
}

func (t *directTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.live.Close()
	})
	return err
}

func (t *directTransport) receiveLoop() {
	for {
		msg, err := t.live.Receive()
		if err != nil {
			select {
			case <-t.done:
			default:
				if t.events.OnClose != nil {
					t.events.OnClose()
				}
			}
			return
		}
		if t.events.OnMessage == nil {
			continue
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			if t.events.OnError != nil {
				t.events.OnError(fmt.Errorf("encode provider message: %w", err))
			}
			continue
		}
		t.events.OnMessage(raw)
	}
}
