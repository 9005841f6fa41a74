package sdk

import (
	"fmt"
	"sync"
)

// Recorder abstracts a microphone. Start begins delivering PCM16 chunks
// at InputSampleRate to onChunk from a device thread; Stop ends delivery.
type Recorder interface {
	Start(onChunk func(pcm []byte)) error
	Stop() error
}

// CaptureStart controls when the microphone opens.
type CaptureStart int

const (
	// CaptureOnFirstAudio keeps the microphone closed until the tutor
	// has spoken once. Guide mode uses this so the tutor's opening line
	// is never talked over and the mic permission prompt comes late.
	CaptureOnFirstAudio CaptureStart = iota
	// CaptureImmediately opens the microphone as soon as the session is
	// ready. Score mode uses this because the learner speaks first.
	CaptureImmediately
)

// Capture feeds microphone audio into a send function according to the
// configured start policy.
type Capture struct {
	rec    Recorder
	policy CaptureStart
	send   func(pcm []byte) error

	mu      sync.Mutex
	armed   bool
	running bool
	stopped bool
}

// NewCapture builds the pipeline. send is called from the recorder's
// device thread and must not block for long.
func NewCapture(rec Recorder, policy CaptureStart, send func(pcm []byte) error) *Capture {
	return &Capture{rec: rec, policy: policy, send: send}
}

// Arm marks the session ready. Under CaptureImmediately the microphone
// starts here; under CaptureOnFirstAudio it waits for TutorSpoke.
func (c *Capture) Arm() error {
	c.mu.Lock()
	c.armed = true
	startNow := c.policy == CaptureImmediately && !c.running && !c.stopped
	c.mu.Unlock()

	if startNow {
		return c.start()
	}
	return nil
}

// TutorSpoke signals that provider audio has arrived. Under
// CaptureOnFirstAudio this opens the microphone; repeat calls are no-ops.
func (c *Capture) TutorSpoke() error {
	c.mu.Lock()
	startNow := c.policy == CaptureOnFirstAudio && c.armed && !c.running && !c.stopped
	c.mu.Unlock()

	if startNow {
		return c.start()
	}
	return nil
}

// Running reports whether the microphone is currently open.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop closes the microphone for good.
func (c *Capture) Stop() error {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	c.stopped = true
	c.mu.Unlock()

	if !wasRunning {
		return nil
	}
	return c.rec.Stop()
}

func (c *Capture) start() error {
	c.mu.Lock()
	if c.running || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	err := c.rec.Start(func(pcm []byte) {
		c.mu.Lock()
		active := c.running
		c.mu.Unlock()
		if !active {
			return
		}
		_ = c.send(pcm)
	})
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("start recorder: %w", err)
	}
	return nil
}
