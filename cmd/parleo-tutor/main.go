package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parleo-app/parleo/internal/dotenv"
	"github.com/parleo-app/parleo/sdk"
)

type options struct {
	gateway  string
	direct   bool
	language string
	context  string
	mode     string
	model    string
	voice    string

	minBufferMS int
	testToneMS  int
	debug       bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		return 2
	}

	var opt options
	flag.StringVar(&opt.gateway, "gateway", strings.TrimSpace(os.Getenv("PARLEO_GATEWAY_URL")), "Gateway base URL (ws(s)://host:port/voice); also reads PARLEO_GATEWAY_URL")
	flag.BoolVar(&opt.direct, "direct", false, "Connect straight to the provider with PARLEO_GEMINI_API_KEY instead of a gateway")
	flag.StringVar(&opt.language, "language", "spanish", "Practice language")
	flag.StringVar(&opt.context, "context", "", "Short scenario for the conversation, e.g. \"ordering coffee\"")
	flag.StringVar(&opt.mode, "mode", "guide", "Session mode: guide or score")
	flag.StringVar(&opt.model, "model", "", "Provider model override (direct mode only)")
	flag.StringVar(&opt.voice, "voice", "", "Provider voice override (direct mode only)")
	flag.IntVar(&opt.minBufferMS, "min-buffer-ms", 120, "Audio to accumulate before playback starts, in ms")
	flag.IntVar(&opt.testToneMS, "test-tone-ms", 0, "If >0, play a 440Hz test tone for this many ms and exit")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if opt.testToneMS > 0 {
		return playTestTone(opt.testToneMS)
	}

	apiKey := strings.TrimSpace(os.Getenv("PARLEO_GEMINI_API_KEY"))
	if opt.direct && apiKey == "" {
		fmt.Fprintln(os.Stderr, "--direct requires PARLEO_GEMINI_API_KEY")
		return 2
	}
	if !opt.direct && strings.TrimSpace(opt.gateway) == "" {
		fmt.Fprintln(os.Stderr, "--gateway is required (or set PARLEO_GATEWAY_URL, or use --direct)")
		return 2
	}
	switch opt.mode {
	case "guide", "score":
	default:
		fmt.Fprintln(os.Stderr, "--mode must be guide or score")
		return 2
	}
	if opt.minBufferMS < 0 {
		fmt.Fprintln(os.Stderr, "--min-buffer-ms must be >= 0")
		return 2
	}

	mic, err := newMicRecorder()
	if err != nil {
		fmt.Fprintln(os.Stderr, "microphone:", err)
		return 1
	}
	defer mic.Close()

	speaker, err := newSpeakerSink()
	if err != nil {
		fmt.Fprintln(os.Stderr, "speaker:", err)
		return 1
	}
	defer speaker.Close()

	sessOpts := sdk.SessionOptions{
		Language:          opt.language,
		Context:           opt.context,
		PronunciationMode: opt.mode,
		Model:             opt.model,
		Voice:             opt.voice,
	}

	dial := func(ctx context.Context, so sdk.SessionOptions, ev sdk.Events) (sdk.Transport, error) {
		if opt.direct {
			return sdk.ConnectDirect(ctx, apiKey, so, ev)
		}
		return sdk.DialGateway(ctx, voiceURL(opt.gateway), so, ev)
	}

	sess := sdk.NewVoiceSession(dial, sdk.VoiceSessionConfig{
		Options:   sessOpts,
		Recorder:  mic,
		Sink:      speaker,
		MinBuffer: time.Duration(opt.minBufferMS) * time.Millisecond,
		OnStateChange: func(from, to sdk.State) {
			fmt.Fprintf(os.Stderr, "[%s]\n", to)
		},
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, "session:", err)
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "practicing %s (%s mode), Ctrl-C to stop\n", opt.language, opt.mode)
	<-ctx.Done()

	sess.Close()
	return 0
}

// voiceURL normalizes a base URL into the websocket voice endpoint.
func voiceURL(base string) string {
	u := strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	}
	if !strings.HasSuffix(u, "/voice") {
		u += "/voice"
	}
	return u
}

func playTestTone(ms int) int {
	speaker, err := newSpeakerSink()
	if err != nil {
		fmt.Fprintln(os.Stderr, "speaker:", err)
		return 1
	}
	defer speaker.Close()

	dur := time.Duration(ms) * time.Millisecond
	if err := speaker.Write(testTone(440, dur)); err != nil {
		fmt.Fprintln(os.Stderr, "play tone:", err)
		return 1
	}
	// let the device drain
	time.Sleep(dur + 200*time.Millisecond)
	return 0
}
