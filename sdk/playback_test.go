package sdk

import (
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	writes [][]byte
	resets int
}

func (s *fakeSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *fakeSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

func (s *fakeSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// pcmOf returns silence of the given play length at the output rate.
func pcmOf(d time.Duration) []byte {
	samples := int(d * OutputSampleRate / time.Second)
	return make([]byte, samples*2)
}

func TestPlaybackCursorIsGapless(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	sink := &fakeSink{}
	p := NewPlayback(sink, PlaybackConfig{Now: clock})

	// two chunks arriving together must be scheduled back to back
	_ = p.Enqueue(pcmOf(100 * time.Millisecond))
	_ = p.Enqueue(pcmOf(50 * time.Millisecond))

	p.mu.Lock()
	got := p.cursor
	p.mu.Unlock()
	if want := base.Add(150 * time.Millisecond); !got.Equal(want) {
		t.Fatalf("cursor = %v, want %v", got, want)
	}

	// a chunk arriving after the cursor passed restarts from now
	mu.Lock()
	now = base.Add(500 * time.Millisecond)
	mu.Unlock()
	_ = p.Enqueue(pcmOf(100 * time.Millisecond))

	p.mu.Lock()
	got = p.cursor
	p.mu.Unlock()
	if want := base.Add(600 * time.Millisecond); !got.Equal(want) {
		t.Fatalf("cursor = %v, want %v", got, want)
	}
}

func TestPlaybackIdleAfterChunksFinish(t *testing.T) {
	sink := &fakeSink{}
	done := make(chan struct{}, 1)
	p := NewPlayback(sink, PlaybackConfig{
		OnSpeakingEnd: func() { done <- struct{}{} },
	})

	if p.Playing() {
		t.Fatal("new playback should be idle")
	}
	_ = p.Enqueue(pcmOf(20 * time.Millisecond))
	if !p.Playing() {
		t.Fatal("should be playing after enqueue")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("speaking never ended")
	}
	if p.Playing() {
		t.Fatal("should be idle after the chunk finished")
	}
}

func TestPlaybackInterrupt(t *testing.T) {
	sink := &fakeSink{}
	ended := make(chan struct{}, 1)
	p := NewPlayback(sink, PlaybackConfig{
		OnSpeakingEnd: func() { ended <- struct{}{} },
	})

	_ = p.Enqueue(pcmOf(5 * time.Second))
	if !p.Playing() {
		t.Fatal("should be playing")
	}

	if err := p.Interrupt(); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	if p.Playing() {
		t.Fatal("interrupt should clear all scheduled chunks")
	}
	if sink.resets != 1 {
		t.Fatalf("resets = %d, want 1", sink.resets)
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("interrupt should fire OnSpeakingEnd")
	}

	// cursor restarts from now: a fresh chunk plays immediately
	_ = p.Enqueue(pcmOf(20 * time.Millisecond))
	if !p.Playing() {
		t.Fatal("should play after interrupt")
	}
}

func TestPlaybackPreBuffer(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayback(sink, PlaybackConfig{MinBuffer: 100 * time.Millisecond})

	_ = p.Enqueue(pcmOf(40 * time.Millisecond))
	if sink.writeCount() != 0 {
		t.Fatal("audio should be held until the pre-buffer fills")
	}
	_ = p.Enqueue(pcmOf(80 * time.Millisecond))
	if sink.writeCount() != 2 {
		t.Fatalf("writes = %d, want buffered chunks released together", sink.writeCount())
	}

	// once started, subsequent chunks pass straight through
	_ = p.Enqueue(pcmOf(10 * time.Millisecond))
	if sink.writeCount() != 3 {
		t.Fatalf("writes = %d, want 3", sink.writeCount())
	}
}

func TestPlaybackFlushReleasesShortUtterance(t *testing.T) {
	sink := &fakeSink{}
	p := NewPlayback(sink, PlaybackConfig{MinBuffer: time.Second})

	_ = p.Enqueue(pcmOf(30 * time.Millisecond))
	if sink.writeCount() != 0 {
		t.Fatal("short utterance should still be buffered")
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sink.writeCount() != 1 {
		t.Fatalf("writes = %d after flush, want 1", sink.writeCount())
	}
}
