package sdk

import "encoding/json"

// Turn is one role-tagged piece of dialogue content.
type Turn struct {
	Role string
	Text string
}

// SessionOptions describe the tutoring session to open.
type SessionOptions struct {
	Language          string
	Context           string
	PronunciationMode string

	// Model and Voice apply to the direct transport only; the gateway
	// chooses them server-side.
	Model string
	Voice string
}

// Events are the transport callbacks. Both transports deliver the same
// surface so the rest of the pipeline never knows which one it sits on.
// OnMessage receives provider payloads verbatim.
type Events struct {
	OnOpen    func()
	OnMessage func(raw json.RawMessage)
	OnError   func(err error)
	OnClose   func()
}

// Transport is an open connection carrying the voice session.
type Transport interface {
	// SendRealtimeAudio streams one chunk of learner microphone PCM16.
	SendRealtimeAudio(pcm []byte) error
	// SendTurnContent submits typed turns.
	SendTurnContent(turns []Turn, turnComplete bool) error
	// Close ends the session. Safe to call more than once.
	Close() error
}
