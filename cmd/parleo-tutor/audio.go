package main

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/parleo-app/parleo/sdk"
)

// micRecorder captures 16 kHz mono PCM16 from the default input device.
// It implements sdk.Recorder.
type micRecorder struct {
	malgoCtx *malgo.AllocatedContext

	mu     sync.Mutex
	device *malgo.Device
}

func newMicRecorder() (*micRecorder, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &micRecorder{malgoCtx: malgoCtx}, nil
}

func (m *micRecorder) Start(onChunk func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sdk.InputSampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := make([]byte, len(input))
			copy(chunk, input)
			onChunk(chunk)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return nil
}

func (m *micRecorder) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	_ = m.device.Stop()
	m.device.Uninit()
	m.device = nil
	return nil
}

func (m *micRecorder) Close() {
	_ = m.Stop()
	_ = m.malgoCtx.Uninit()
	m.malgoCtx.Free()
}

// speakerSink plays 24 kHz mono PCM16 through the default output device.
// It implements sdk.Sink; Reset drops whatever has not reached the
// device yet, which is how barge-in cuts the tutor off.
type speakerSink struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

func newSpeakerSink() (*speakerSink, error) {
	// ~100ms device buffer keeps latency low without glitching
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sdk.OutputSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   sdk.OutputSampleRate / 10 * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	return &speakerSink{otoCtx: otoCtx}, nil
}

func (s *speakerSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("speaker is closed")
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	return nil
}

func (s *speakerSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	return nil
}

// Read feeds the oto player. Silence is returned while the buffer is
// empty so the device keeps running between utterances.
func (s *speakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed && len(s.buf) == 0 {
		return 0, fmt.Errorf("speaker closed")
	}
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerSink) Close() {
	s.mu.Lock()
	s.closed = true
	player := s.player
	s.mu.Unlock()
	if player != nil {
		_ = player.Close()
	}
}
