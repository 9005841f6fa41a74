package sdk

import (
	"sync"
	"time"
)

// Sink receives PCM16 bytes for immediate playback. Write appends to the
// device buffer; Reset drops anything not yet played.
type Sink interface {
	Write(pcm []byte) error
	Reset() error
}

// PlaybackConfig tunes the scheduler.
type PlaybackConfig struct {
	SampleRate int
	// MinBuffer is the amount of audio held back before the first write
	// of an utterance reaches the sink. It absorbs network jitter at the
	// cost of added latency.
	MinBuffer time.Duration

	// OnSpeakingStart fires when playback goes from idle to active,
	// OnSpeakingEnd when the last scheduled chunk finishes or playback
	// is interrupted. Both are called without internal locks held.
	OnSpeakingStart func()
	OnSpeakingEnd   func()

	Now func() time.Time
}

// Playback schedules tutor speech gaplessly. Each chunk is placed at the
// later of the stream cursor and now, and the cursor advances by the
// chunk's duration, so back-to-back chunks play seamlessly while a gap in
// arrival simply restarts from now.
type Playback struct {
	cfg  PlaybackConfig
	sink Sink

	mu          sync.Mutex
	cursor      time.Time
	live        map[int]*time.Timer
	nextID      int
	started     bool
	prebuf      [][]byte
	prebufBytes int
}

func NewPlayback(sink Sink, cfg PlaybackConfig) *Playback {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = OutputSampleRate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Playback{
		cfg:  cfg,
		sink: sink,
		live: make(map[int]*time.Timer),
	}
}

// Enqueue schedules one PCM16 chunk of tutor speech.
func (p *Playback) Enqueue(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	now := p.cfg.Now()
	start := p.cursor
	if start.Before(now) {
		start = now
	}
	dur := PCMDuration(len(pcm), p.cfg.SampleRate)
	end := start.Add(dur)
	p.cursor = end

	wasIdle := len(p.live) == 0
	id := p.nextID
	p.nextID++
	p.live[id] = time.AfterFunc(end.Sub(now), func() { p.chunkDone(id) })

	var err error
	if p.started || p.cfg.MinBuffer <= 0 {
		p.started = true
		err = p.sink.Write(pcm)
	} else {
		p.prebuf = append(p.prebuf, pcm)
		p.prebufBytes += len(pcm)
		if PCMDuration(p.prebufBytes, p.cfg.SampleRate) >= p.cfg.MinBuffer {
			err = p.flushLocked()
		}
	}
	onStart := p.cfg.OnSpeakingStart
	p.mu.Unlock()

	if wasIdle && onStart != nil {
		onStart()
	}
	return err
}

// Flush releases audio still held in the pre-buffer. Call it when the
// provider signals the end of a turn so short utterances are not stuck
// below the buffering threshold.
func (p *Playback) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

// flushLocked must run with p.mu held.
func (p *Playback) flushLocked() error {
	p.started = true
	for _, chunk := range p.prebuf {
		if err := p.sink.Write(chunk); err != nil {
			p.prebuf = nil
			p.prebufBytes = 0
			return err
		}
	}
	p.prebuf = nil
	p.prebufBytes = 0
	return nil
}

// Interrupt stops everything scheduled and resets the cursor to now.
// Used for barge-in: the learner spoke while the tutor was talking.
func (p *Playback) Interrupt() error {
	p.mu.Lock()
	wasPlaying := len(p.live) > 0
	for id, timer := range p.live {
		timer.Stop()
		delete(p.live, id)
	}
	p.cursor = p.cfg.Now()
	p.prebuf = nil
	p.prebufBytes = 0
	p.started = false
	err := p.sink.Reset()
	onEnd := p.cfg.OnSpeakingEnd
	p.mu.Unlock()

	if wasPlaying && onEnd != nil {
		onEnd()
	}
	return err
}

// Playing reports whether any chunk is still scheduled.
func (p *Playback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live) > 0
}

func (p *Playback) chunkDone(id int) {
	p.mu.Lock()
	if _, ok := p.live[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.live, id)
	idle := len(p.live) == 0
	if idle {
		// next utterance pre-buffers again
		p.started = false
	}
	onEnd := p.cfg.OnSpeakingEnd
	p.mu.Unlock()

	if idle && onEnd != nil {
		onEnd()
	}
}
