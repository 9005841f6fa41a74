// Package protocol defines the JSON frames exchanged between a tutoring
// client and the voice gateway. Only the gateway's own envelope is typed;
// provider payloads are relayed opaquely and never modeled here.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ModeGuide = "guide"
	ModeScore = "score"

	MimePCM16Input  = "audio/pcm;rate=16000"
	MimePCM16Output = "audio/pcm;rate=24000"

	InputSampleRateHz  = 16000
	OutputSampleRateHz = 24000
)

// DecodeError is a validation failure that maps to a client-facing error
// event. Message text is safe to send to the client.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientInit opens a tutoring session. It must be the first frame on the
// socket and may appear at most once per connection.
type ClientInit struct {
	Type              string `json:"type"`
	Language          string `json:"language"`
	Context           string `json:"context"`
	PronunciationMode string `json:"pronunciationMode,omitempty"`
}

// AudioChunk carries one slice of a continuous PCM16 stream. Chunk
// boundaries have no semantic meaning.
type AudioChunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
}

// ClientRealtime streams learner microphone audio toward the provider.
type ClientRealtime struct {
	Type  string     `json:"type"`
	Audio AudioChunk `json:"audio"`
}

// TurnPart is one piece of role-tagged content inside a turn.
type TurnPart struct {
	Text string `json:"text"`
}

// Turn is one exchange unit in the dialogue protocol.
type Turn struct {
	Role  string     `json:"role"`
	Parts []TurnPart `json:"parts"`
}

// ClientContent sends explicit turn content (typed text) to the provider.
type ClientContent struct {
	Type         string `json:"type"`
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turnComplete"`
}

// Server events. Provider payloads are forwarded verbatim alongside these
// and are deliberately not represented as a type.
type ServerOpen struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type ServerClose struct {
	Type string `json:"type"`
}

func NewOpen() ServerOpen { return ServerOpen{Type: "open"} }

func NewError(code, message string) ServerError {
	return ServerError{Type: "error", Code: code, Message: message}
}

func NewClose() ServerClose { return ServerClose{Type: "close"} }

// DecodeClientMessage parses one inbound frame. It returns (nil, nil) for
// frames that are well-formed JSON but carry an unknown type: the gateway
// ignores those rather than killing the connection.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}

	switch strings.TrimSpace(envelope.Type) {
	case "init":
		var msg ClientInit
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid init frame", "")
		}
		mode := strings.TrimSpace(msg.PronunciationMode)
		if mode == "" {
			mode = ModeGuide
		}
		if mode != ModeGuide && mode != ModeScore {
			return nil, badRequest("pronunciationMode must be guide or score", "pronunciationMode")
		}
		msg.PronunciationMode = mode
		return msg, nil
	case "realtime":
		var msg ClientRealtime
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid realtime frame", "")
		}
		if strings.TrimSpace(msg.Audio.Data) == "" {
			return nil, badRequest("realtime.audio.data is required", "audio.data")
		}
		return msg, nil
	case "content":
		var msg ClientContent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid content frame", "")
		}
		if len(msg.Turns) == 0 {
			return nil, badRequest("content.turns must not be empty", "turns")
		}
		return msg, nil
	default:
		return nil, nil
	}
}
