// Package upstream connects gateway sessions to the speech-dialogue
// provider. The gateway relays provider messages to clients verbatim, so
// Session surfaces them as raw JSON rather than a typed model.
package upstream

import (
	"context"
	"encoding/json"
)

// SessionConfig carries everything needed to open one provider session.
type SessionConfig struct {
	Language          string
	Context           string
	PronunciationMode string
}

// Session is one live bidirectional dialogue with the provider.
type Session interface {
	// SendAudio streams raw PCM16 microphone bytes.
	SendAudio(data []byte) error
	// SendContent submits explicit role-tagged turns.
	SendContent(turns []Turn, turnComplete bool) error
	// Receive blocks for the next provider message, returned as the JSON
	// the client will see. It returns an error once the session ends.
	Receive() (json.RawMessage, error)
	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Turn mirrors the client content frame without depending on the wire
// protocol package. A turn may carry several text parts; all of them
// reach the provider.
type Turn struct {
	Role  string
	Parts []string
}

// Provider opens sessions. Implementations must be safe for concurrent
// Connect calls.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
