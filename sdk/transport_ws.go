package sdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsTransport speaks the gateway's websocket protocol. The gateway holds
// the provider session; this side only frames client messages and
// upcalls whatever the gateway relays.
type wsTransport struct {
	conn   *websocket.Conn
	events Events

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// DialGateway connects to a voice gateway and sends the init frame. The
// returned transport is live immediately; OnOpen fires once the gateway
// reports the provider session is ready.
func DialGateway(ctx context.Context, url string, opts SessionOptions, events Events) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	t := &wsTransport{
		conn:   conn,
		events: events,
		done:   make(chan struct{}),
	}

	init := map[string]any{
		"type":     "init",
		"language": opts.Language,
		"context":  opts.Context,
	}
	if opts.PronunciationMode != "" {
		init["pronunciationMode"] = opts.PronunciationMode
	}
	if err := t.writeJSON(init); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send init: %w", err)
	}

	go t.readLoop()
	return t, nil
}

func (t *wsTransport) SendRealtimeAudio(pcm []byte) error {
	return t.writeJSON(map[string]any{
		"type": "realtime",
		"audio": map[string]any{
			"data":     base64.StdEncoding.EncodeToString(pcm),
			"mimeType": fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate),
		},
	})
}

func (t *wsTransport) SendTurnContent(turns []Turn, turnComplete bool) error {
	wire := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		role := turn.Role
		if role == "" {
			role = "user"
		}
		wire = append(wire, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": turn.Text}},
		})
	}
	return t.writeJSON(map[string]any{
		"type":         "content",
		"turns":        wire,
		"turnComplete": turnComplete,
	})
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		deadline := time.Now().Add(wsWriteTimeout)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
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
		t.dispatch(data)
	}
}

// dispatch routes gateway envelope events to their callbacks and hands
// everything else to OnMessage untouched.
func (t *wsTransport) dispatch(data []byte) {
	var envelope struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}

	switch envelope.Type {
	case "open":
		if t.events.OnOpen != nil {
			t.events.OnOpen()
		}
	case "error":
		if t.events.OnError != nil {
			msg := envelope.Message
			if envelope.Code != "" {
				msg = envelope.Code + ": " + msg
			}
			t.events.OnError(errors.New(msg))
		}
	case "close":
		if t.events.OnClose != nil {
			t.events.OnClose()
		}
	default:
		if t.events.OnMessage != nil {
			t.events.OnMessage(json.RawMessage(data))
		}
	}
}
